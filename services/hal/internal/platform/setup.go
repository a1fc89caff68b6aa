package platform

import "dhtlink/types"

// GetInitialConfig is the board's built-in HAL config, empty unless a board
// setup is selected by build tag.
func GetInitialConfig() types.HALConfig { return getSelectedSetup() }
