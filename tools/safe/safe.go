package safe

import (
	"fmt"
	"reflect"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies in constructors.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns s, or fallback when s is empty.
func DefaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// DefaultInt returns i, or fallback when i is not positive.
func DefaultInt(i, fallback int) int {
	if i <= 0 {
		return fallback
	}
	return i
}

// Go starts f in a goroutine that recovers from panic and logs it under name,
// so that one bad connection can't crash the process.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and converts a panic into a logged error.
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered", zap.String("goroutine", name), zap.Error(errs.ErrPanic(r)))
		}
	}()
	f()
}
