package types

// ConsoleConfig is supplied retained on "config/console".
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
	// MinIntervalMs rate-limits output per sensor; 0 prints every reading.
	MinIntervalMs uint32 `json:"min_interval_ms,omitempty"`
}
