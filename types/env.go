package types

// ------------------------
// Temperature & humidity
// ------------------------

// DHT11Params configures one single-wire sensor. Zero fields take driver
// defaults.
type DHT11Params struct {
	Pin          int    `json:"pin"`
	IntervalMs   uint32 `json:"interval_ms,omitempty"`    // sampling period, min 1000
	TimeoutUs    uint32 `json:"timeout_us,omitempty"`     // per-level wait budget
	StartPulseMs uint32 `json:"start_pulse_ms,omitempty"` // host wake-up pulse
	Debug        bool   `json:"debug,omitempty"`
}

type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht11"
	Pin    int    `json:"pin"`
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Pin    int    `json:"pin"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 245 => 24.5°C).
	DeciC int16 `json:"deci_c"`
	TS    int64 `json:"ts_ms"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
	TS     int64  `json:"ts_ms"`
}

// SensorStats is the reply to the "stats" control on a dht11 capability.
type SensorStats struct {
	Reads            uint32 `json:"reads"`
	OK               uint32 `json:"ok"`
	HandshakeTimeout uint32 `json:"handshake_timeout"`
	BitTimeout       uint32 `json:"bit_timeout"`
	Checksum         uint32 `json:"checksum"`
	LastError        string `json:"last_error,omitempty"`
}
