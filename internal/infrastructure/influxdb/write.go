package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBodyTemperature records a body-of-water temperature sample along
// with its current setpoints.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - bodyID: Controller object name (e.g., "B1101")
//   - name: Friendly name (e.g., "Pool")
//   - temp: Last measured water temperature
//   - lowSetpoint: Heating setpoint
//   - highSetpoint: Cooling setpoint
//
// Example:
//
//	client.WriteBodyTemperature("B1101", "Pool", 84.0, 82.0, 95.0)
func (c *Client) WriteBodyTemperature(bodyID, name string, temp, lowSetpoint, highSetpoint float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"water_temperature",
		map[string]string{
			"body_id": bodyID,
			"name":    name,
		},
		map[string]interface{}{
			"temperature":   temp,
			"low_setpoint":  lowSetpoint,
			"high_setpoint": highSetpoint,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorReading records an ambient or water probe reading.
//
// Parameters:
//   - sensorID: Controller object name (e.g., "SSW11")
//   - name: Friendly name (e.g., "Air Sensor")
//   - probe: Current probe reading
func (c *Client) WriteSensorReading(sensorID, name string, probe float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor",
		map[string]string{
			"sensor_id": sensorID,
			"name":      name,
		},
		map[string]interface{}{
			"probe": probe,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePumpMetrics records a derived pump telemetry sample.
//
// Speed is the commanded speed from the highest-priority active pump
// circuit; flow and power come from the per-class performance curves.
// A speed at the sub-floor sentinel means the pump has no active
// circuit; the sample is still recorded so downtime is visible in the
// series.
//
// Parameters:
//   - pumpID: Controller object name (e.g., "PMP01")
//   - speedUnits: "RPM" or "GPM", tagging which domain speed is in
//   - speed: Commanded speed, or the inactive sentinel
//   - gpm: Estimated flow in gallons per minute
//   - watts: Estimated power draw
func (c *Client) WritePumpMetrics(pumpID, speedUnits string, speed, gpm, watts float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pump",
		map[string]string{
			"pump_id":     pumpID,
			"speed_units": speedUnits,
		},
		map[string]interface{}{
			"speed": speed,
			"gpm":   gpm,
			"watts": watts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
