package types

// Kind names a capability's domain for topic construction (bus.T(...,
// string(kind), ...)). Trimmed to the sensor/power classes the catalog's
// built-in device types actually expose; the teacher's full enum also
// carries LED/Switch/PWM/Serial/Button, which have no device in this
// catalog to back them.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindLight       Kind = "light"
	KindBattery     Kind = "battery"
	KindCharger     Kind = "charger"
)
