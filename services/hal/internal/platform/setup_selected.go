//go:build pico && dht11_board

package platform

import (
	"dhtlink/services/hal/internal/platform/setups"
	"dhtlink/types"
)

func getSelectedSetup() types.HALConfig { return setups.SelectedSetup }
