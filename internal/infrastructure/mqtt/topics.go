package mqtt

import "fmt"

// Topic namespace layout:
//
//	poollogic/system/status          retained service availability
//	poollogic/state/<kind>/<id>      retained entity state
//	poollogic/telemetry/pump/<id>    derived pump metrics
const topicPrefix = "poollogic"

// Topics builds topic strings for the fixed namespace. The zero value is
// ready to use.
type Topics struct{}

// SystemStatus is the retained service availability topic; also the LWT
// target.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// EntityState is the retained per-entity state topic.
func (Topics) EntityState(kind, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", topicPrefix, kind, id)
}

// PumpTelemetry carries the derived metric stream for one pump.
func (Topics) PumpTelemetry(id string) string {
	return fmt.Sprintf("%s/telemetry/pump/%s", topicPrefix, id)
}
