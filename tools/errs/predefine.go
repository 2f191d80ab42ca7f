package errs

const (
	ServerInternalError = 500
	ArgsError           = 1000

	DuplicateConnectionError = 1001
	UnknownSenderError       = 1002
	EmptyMessageError        = 1003
	InvalidLocationError     = 1004
	MessageTooLongError      = 1005
	InvalidConnectionError   = 1006
	DeliveryFailedError      = 1007
	QueueFullError           = 1008
	UnknownEventError        = 1009
	BadPayloadError          = 1010
	ConnectionClosedError    = 1011
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "server internal error")
	ErrArgs           = NewCodeError(ArgsError, "invalid argument")

	ErrDuplicateConnection = NewCodeError(DuplicateConnectionError, "duplicate connection")
	ErrUnknownSender       = NewCodeError(UnknownSenderError, "unknown sender")
	ErrEmptyMessage        = NewCodeError(EmptyMessageError, "empty message")
	ErrInvalidLocation     = NewCodeError(InvalidLocationError, "invalid location")
	ErrMessageTooLong      = NewCodeError(MessageTooLongError, "message too long")
	ErrInvalidConnection   = NewCodeError(InvalidConnectionError, "invalid connection")
	ErrDeliveryFailed      = NewCodeError(DeliveryFailedError, "delivery failed")
	ErrQueueFull           = NewCodeError(QueueFullError, "outbound queue full")
	ErrUnknownEvent        = NewCodeError(UnknownEventError, "unknown event")
	ErrBadPayload          = NewCodeError(BadPayloadError, "bad payload")
	ErrConnectionClosed    = NewCodeError(ConnectionClosedError, "connection closed")
)

func init() {
	// argument errors
	_ = DefaultCodeRelation.Add(ArgsError, EmptyMessageError)
	_ = DefaultCodeRelation.Add(ArgsError, InvalidLocationError)
	_ = DefaultCodeRelation.Add(ArgsError, MessageTooLongError)
	_ = DefaultCodeRelation.Add(ArgsError, BadPayloadError)
	// delivery failures
	_ = DefaultCodeRelation.Add(DeliveryFailedError, QueueFullError)
	_ = DefaultCodeRelation.Add(DeliveryFailedError, ConnectionClosedError)
}
