package config

import (
	"context"
	"encoding/json"
	"errors"

	"dhtlink/bus"
	"dhtlink/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes each
// top-level section retained on config/<key>. Sections with a known shape are
// published typed; the rest as decoded JSON values.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return errors.New("embedded config is not a JSON object: " + err.Error())
	}

	var firstErr error
	for k, v := range sections {
		payload, err := decodeSection(k, v)
		if err != nil {
			println("[config] section", k, "invalid:", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), payload, true))
	}
	return firstErr
}

func decodeSection(key string, raw json.RawMessage) (any, error) {
	switch key {
	case "hal":
		return decodeAs[types.HALConfig](raw)
	case "bridge":
		return decodeAs[types.BridgeConfig](raw)
	case "console":
		return decodeAs[types.ConsoleConfig](raw)
	default:
		var v any
		err := json.Unmarshal(raw, &v)
		return v, err
	}
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config]", err.Error())
		}
	}()
}
