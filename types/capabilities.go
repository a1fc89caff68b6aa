package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)

// CapabilityAddress identifies a public capability on the bus:
// hal/capability/<kind>/<id>.
type CapabilityAddress struct {
	Kind Kind `json:"kind"`
	ID   int  `json:"id"`
}
