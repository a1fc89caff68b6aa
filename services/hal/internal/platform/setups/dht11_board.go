//go:build pico && dht11_board

package setups

import "dhtlink/types"

// SelectedSetup lists logical devices for HAL to instantiate on boot.
// Capabilities appear as hal/capability/{temperature,humidity}/<n>/….
var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		// DHT11 data on GP2 with a 10k pull-up to 3V3.
		{ID: "env0", Type: "dht11", Params: types.DHT11Params{Pin: 2, IntervalMs: 2000}},
	},
}
