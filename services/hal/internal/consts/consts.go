// services/hal/internal/consts/consts.go
package consts

// Topic tokens
const (
	TokConfig     = "config"
	TokHAL        = "hal"
	TokCapability = "capability"
	TokInfo       = "info"
	TokState      = "state"
	TokValue      = "value"
	TokControl    = "control"
)

// Control verbs
const (
	CtrlReadNow = "read_now"
	CtrlSetRate = "set_rate"
	CtrlStats   = "stats"
)

// Capability kinds
const (
	KindTemperature = "temperature"
	KindHumidity    = "humidity"
)

// Device types
const (
	DevDHT11 = "dht11"
)

const (
	LinkUp       = "up"
	LinkDown     = "down"
	LinkDegraded = "degraded"
)
