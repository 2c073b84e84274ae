package errors

// Error codes for the provider contracts. Keep stable; used across adapters and the provider.
const (
	ErrCodeEmitterNotSet       = "provider.emitter_not_set"
	ErrCodeOptionsNotSet       = "provider.options_not_set"
	ErrCodeQueueNameNotSet     = "provider.queue_name_not_set"
	ErrCodeExchangeNameNotSet  = "provider.exchange_name_not_set"
	ErrCodeDialerNotSet        = "provider.dialer_not_set"
	ErrCodeConnectFailed       = "provider.connect_failed"
	ErrCodePublishFailed       = "provider.publish_failed"
	ErrCodeSubscribeFailed     = "provider.subscribe_failed"
	ErrCodeSerializationFailed = "provider.serialization_failed"
	ErrCodeNotBound            = "provider.not_bound"
	ErrCodeClosed              = "provider.closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrEmitterNotSet       = Code(ErrCodeEmitterNotSet)
	ErrOptionsNotSet       = Code(ErrCodeOptionsNotSet)
	ErrQueueNameNotSet     = Code(ErrCodeQueueNameNotSet)
	ErrExchangeNameNotSet  = Code(ErrCodeExchangeNameNotSet)
	ErrDialerNotSet        = Code(ErrCodeDialerNotSet)
	ErrConnectFailed       = Code(ErrCodeConnectFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrNotBound            = Code(ErrCodeNotBound)
	ErrClosed              = Code(ErrCodeClosed)
)
