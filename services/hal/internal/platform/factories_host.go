// services/hal/internal/platform/factories_host.go
//go:build !linux && !rp2040 && !rp2350

package platform

import "dhtlink/services/hal/internal/halcore"

// DefaultPinFactory provides inert host pins. Attach simulated sensors with
// HostPinFactory.Attach.
func DefaultPinFactory() halcore.PinFactory { return &HostPinFactory{} }
