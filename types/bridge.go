package types

import "encoding/json"

// BridgeConfig is supplied retained on "config/bridge".
type BridgeConfig struct {
	Transport BridgeTransport `json:"transport"`
	// Forward lists bus topic patterns sent upstream, slash-separated with
	// MQTT-style wildcards, e.g. "hal/capability/+/+/value".
	Forward []string `json:"forward,omitempty"`
}

type BridgeTransport struct {
	Type string      `json:"type"` // "uart" or "mqtt"
	UART *UARTLink   `json:"uart,omitempty"`
	MQTT *MQTTBroker `json:"mqtt,omitempty"`
}

// UARTLink carries enough for the injected platform dialler to open a port.
type UARTLink struct {
	Port   string `json:"port,omitempty"` // Linux device path, e.g. /dev/ttyUSB0
	Baud   int    `json:"baud"`
	TxPin  int    `json:"tx_pin,omitempty"` // MCU pin numbers
	RxPin  int    `json:"rx_pin,omitempty"`
	Number int    `json:"uart,omitempty"` // MCU UART instance
}

type MQTTBroker struct {
	Broker   string `json:"broker"` // e.g. tcp://localhost:1883
	ClientID string `json:"client_id,omitempty"`
	Prefix   string `json:"prefix,omitempty"` // prepended to every forwarded topic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// BridgeState is published retained on "bridge/state".
type BridgeState struct {
	Level     string `json:"level"`  // "idle", "up", "degraded", "error"
	Status    string `json:"status"` // short machine string
	Transport string `json:"transport,omitempty"`
	Error     string `json:"error,omitempty"`
	TS        int64  `json:"ts_ms"`
}

// BridgeEnvelope is the upstream wire form of one bus message.
type BridgeEnvelope struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Retained bool            `json:"retained,omitempty"`
}
