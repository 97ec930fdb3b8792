package relay

import "errors"

// Outcome kinds reported by Handle. Callers match them with errors.Is.
var (
	ErrMalformedEnvelope    = errors.New("malformed envelope")
	ErrMissingDeviceID      = errors.New("missing device id")
	ErrInvalidEncoding      = errors.New("invalid body encoding")
	ErrInvalidReading       = errors.New("invalid sensor reading")
	ErrStoreUpdateFailed    = errors.New("twin update failed")
	ErrConfigurationMissing = errors.New("configuration missing")
)

// IsPermanent reports whether redelivering the same event can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrMissingDeviceID) ||
		errors.Is(err, ErrInvalidEncoding) ||
		errors.Is(err, ErrInvalidReading)
}

// Outcome maps a Handle result to a short label for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	case errors.Is(err, ErrMissingDeviceID):
		return "missing_device_id"
	case errors.Is(err, ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, ErrStoreUpdateFailed):
		return "store_update_failed"
	default:
		return "error"
	}
}
