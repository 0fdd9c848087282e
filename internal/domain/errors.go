package domain

import "errors"

var (
	ErrNegativeAQI           = errors.New("aqi must be non-negative")
	ErrUnknownCondition      = errors.New("unknown health condition")
	ErrUnknownActivity       = errors.New("unknown activity level")
	ErrIntensityOutOfRange   = errors.New("policy intensity must be within [0, 1]")
	ErrInvalidForecastLength = errors.New("unsupported forecast length")
	ErrUnknownCounty         = errors.New("unknown county")
	ErrUnknownSite           = errors.New("unknown monitoring site")
	ErrInvalidCoordinates    = errors.New("coordinates out of range")
	ErrEmptyPayload          = errors.New("station payload has no records")
)

// IsInvalidInput reports whether err is a caller error rather than a lookup miss.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrNegativeAQI) ||
		errors.Is(err, ErrUnknownCondition) ||
		errors.Is(err, ErrUnknownActivity) ||
		errors.Is(err, ErrIntensityOutOfRange) ||
		errors.Is(err, ErrInvalidForecastLength) ||
		errors.Is(err, ErrInvalidCoordinates)
}

// IsNotFound reports whether err is a registry lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownCounty) || errors.Is(err, ErrUnknownSite)
}
