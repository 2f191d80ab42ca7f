package config

import (
	"context"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// ConfigClient is the part of the nacos config client the watcher uses.
type ConfigClient interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
	CancelListenConfig(param vo.ConfigParam) error
}

// NewNacosClient dials the nacos config service described by c.
func NewNacosClient(c NacosConfig) (ConfigClient, error) {
	serverConfigs := []constant.ServerConfig{
		*constant.NewServerConfig(c.Host, c.Port),
	}
	clientConfig := *constant.NewClientConfig(
		constant.WithTimeoutMs(c.TimeoutMs),
		constant.WithNamespaceId(c.NamespaceID),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
	)
	cli, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos client", "host", c.Host, "port", c.Port)
	}
	return cli, nil
}

// WatchRuntime loads the runtime document once, applies it to rt and keeps
// applying changes until ctx is done. A bad document is logged and skipped;
// the previous settings stay in effect.
func WatchRuntime(ctx context.Context, cli ConfigClient, c NacosConfig, rt *Runtime) error {
	param := vo.ConfigParam{DataId: c.DataID, Group: c.Group}

	content, err := cli.GetConfig(param)
	if err != nil {
		return errs.WrapMsg(err, "nacos get config", "data_id", c.DataID, "group", c.Group)
	}
	if content != "" {
		if err := rt.ApplyYAML(content); err != nil {
			logger.Warn("nacos initial config rejected", zap.Error(err))
		}
	}

	param.OnChange = func(namespace, group, dataId, data string) {
		logger.Info("nacos config changed", zap.String("data_id", dataId), zap.String("group", group))
		if err := rt.ApplyYAML(data); err != nil {
			logger.Warn("nacos config rejected", zap.String("data_id", dataId), zap.Error(err))
		}
	}
	if err := cli.ListenConfig(param); err != nil {
		return errs.WrapMsg(err, "nacos listen", "data_id", c.DataID)
	}

	go func() {
		<-ctx.Done()
		if err := cli.CancelListenConfig(vo.ConfigParam{DataId: c.DataID, Group: c.Group}); err != nil {
			logger.Warn("nacos cancel listen", zap.Error(err))
		}
	}()
	return nil
}
