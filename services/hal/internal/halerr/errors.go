// services/hal/internal/halerr/errors.go
package halerr

import "errors"

var (
	// Service/control plane
	ErrBusy           = errors.New("busy")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrInvalidCapAddr = errors.New("invalid_capability_address")
	ErrUnknownCap     = errors.New("unknown_capability")
	ErrNoAdaptor      = errors.New("no_adaptor")

	// Build/config
	ErrInvalidParams = errors.New("invalid_params")
	ErrUnknownPin    = errors.New("unknown_pin")
	ErrPinInUse      = errors.New("pin_in_use")
	ErrUnknownType   = errors.New("unknown_device_type")

	// Generic / pass-through
	ErrUnsupported = errors.New("unsupported")
)
