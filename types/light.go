package types

// ------------------------
// Light (vcnl4040: proximity, ambient light, white channel)
// ------------------------

type LightInfo struct {
	Sensor string `json:"sensor"` // "vcnl4040"
	Bus    string `json:"bus"`
	Addr   uint16 `json:"addr"`
}

// Retained value: hal/cap/env/light/<name>/value
type LightValue struct {
	Proximity uint16 `json:"proximity"` // raw PS_DATA counts
	ALSLux    uint32 `json:"als_lux"`   // milli-lux
	White     uint16 `json:"white"`     // raw WHITE_DATA counts
}
