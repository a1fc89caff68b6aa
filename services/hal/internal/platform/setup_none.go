//go:build !(pico && dht11_board)

package platform

import "dhtlink/types"

func getSelectedSetup() types.HALConfig { return types.HALConfig{} }
