package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "hal": {
    "devices": [
      {"id": "env0", "type": "dht11", "params": {"pin": 2, "interval_ms": 2000}}
    ]
  },
  "console": {
    "enabled": true
  },
  "bridge": {
    "transport": {"type": "uart", "uart": {"uart": 0, "baud": 115200, "tx_pin": 0, "rx_pin": 1}},
    "forward": ["hal/capability/+/+/value", "hal/capability/+/+/state", "hal/state"]
  }
}`

const cfgPi = `{
  "hal": {
    "devices": [
      {"id": "env0", "type": "dht11", "params": {"pin": 4, "interval_ms": 5000}}
    ]
  },
  "console": {
    "enabled": false
  },
  "bridge": {
    "transport": {"type": "mqtt", "mqtt": {"broker": "tcp://localhost:1883", "client_id": "dhtlink", "prefix": "dhtlink"}},
    "forward": ["hal/capability/+/+/value", "hal/capability/+/+/state"]
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"pi":   []byte(cfgPi),
}
