// services/hal/hal.go
package hal

import (
	"context"

	"dhtlink/bus"
	"dhtlink/services/hal/internal/consts"
	"dhtlink/services/hal/internal/halcore"
	"dhtlink/services/hal/internal/platform"
	"dhtlink/services/hal/internal/service"

	_ "dhtlink/services/hal/internal/devices/dht11"
)

// PinFactory supplies GPIO pins by number.
type PinFactory = halcore.PinFactory

// Run starts the HAL service and blocks until ctx is cancelled. A nil pins
// uses the platform default. A board setup selected at build time is
// published retained on config/hal before the service starts listening.
func Run(ctx context.Context, conn *bus.Connection, pins PinFactory) {
	if pins == nil {
		pins = platform.DefaultPinFactory()
	}
	if cfg := platform.GetInitialConfig(); len(cfg.Devices) > 0 {
		conn.Publish(conn.NewMessage(bus.Topic{consts.TokConfig, consts.TokHAL}, cfg, true))
	}
	service.New(conn, pins).Run(ctx)
}
