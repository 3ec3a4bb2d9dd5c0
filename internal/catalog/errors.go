package catalog

import "errors"

var (
	// ErrConnectivity means no HTTP response was obtained.
	ErrConnectivity = errors.New("connectivity error")
	// ErrInvalidData means the response status was not 200 or the body failed validation.
	ErrInvalidData = errors.New("invalid data")
)

// ErrorKind is the serialisable category of a load failure.
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindInvalidData  ErrorKind = "invalidData"
)

// KindOf classifies err. It returns "" for nil and for errors that did not
// come from a Loader.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnectivity):
		return KindConnectivity
	case errors.Is(err, ErrInvalidData):
		return KindInvalidData
	default:
		return ""
	}
}
