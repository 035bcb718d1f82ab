package statuspub

import (
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/pool-logic-core/internal/engine"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/pump"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// fakeSource serves canned entity snapshots.
type fakeSource struct {
	circuits map[string]model.Circuit
	bodies   map[string]model.Body
	heaters  map[string]model.Heater
	sensors  map[string]model.Sensor
	pumps    map[string]model.Pump
	metrics  map[string]pump.Metrics
	owners   map[string]string // pump circuit id -> pump id
}

func (f *fakeSource) CircuitState(id string) (model.Circuit, bool) {
	c, ok := f.circuits[id]
	return c, ok
}

func (f *fakeSource) BodyState(id string) (model.Body, bool) {
	b, ok := f.bodies[id]
	return b, ok
}

func (f *fakeSource) HeaterState(id string) (model.Heater, bool) {
	h, ok := f.heaters[id]
	return h, ok
}

func (f *fakeSource) SensorState(id string) (model.Sensor, bool) {
	s, ok := f.sensors[id]
	return s, ok
}

func (f *fakeSource) PumpTelemetry(id string) (model.Pump, pump.Metrics, bool) {
	p, ok := f.pumps[id]
	if !ok {
		return model.Pump{}, pump.Metrics{}, false
	}
	return p, f.metrics[id], true
}

func (f *fakeSource) PumpForCircuitEntry(id string) (string, bool) {
	owner, ok := f.owners[id]
	return owner, ok
}

func (f *fakeSource) EntityIDs() map[string][]string {
	out := map[string][]string{}
	for id := range f.circuits {
		out[engine.KindCircuit] = append(out[engine.KindCircuit], id)
	}
	for id := range f.bodies {
		out[engine.KindBody] = append(out[engine.KindBody], id)
	}
	for id := range f.pumps {
		out[engine.KindPump] = append(out[engine.KindPump], id)
	}
	return out
}

// fakeBroker records every publish.
type fakeBroker struct {
	mu   sync.Mutex
	msgs []brokerMsg
}

type brokerMsg struct {
	topic    string
	payload  string
	retained bool
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, brokerMsg{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (f *fakeBroker) PublishRetained(topic string, payload []byte) error {
	return f.Publish(topic, payload, 1, true)
}

func (f *fakeBroker) byTopic(topic string) (brokerMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.topic == topic {
			return m, true
		}
	}
	return brokerMsg{}, false
}

func (f *fakeBroker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// fakeStore records telemetry writes.
type fakeStore struct {
	mu     sync.Mutex
	bodies []string
	probes []string
	pumps  []string
}

func (f *fakeStore) WriteBodyTemperature(bodyID, _ string, _, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, bodyID)
}

func (f *fakeStore) WriteSensorReading(sensorID, _ string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, sensorID)
}

func (f *fakeStore) WritePumpMetrics(pumpID, _ string, _, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pumps = append(f.pumps, pumpID)
}

func testSource() *fakeSource {
	return &fakeSource{
		circuits: map[string]model.Circuit{
			"C0001": {ID: "C0001", Name: "Pool", Subtype: model.SubtypePool, Status: model.StatusOn, Featured: true},
		},
		bodies: map[string]model.Body{
			"B1101": {ID: "B1101", Name: "Pool", Temperature: 80, LowSetpoint: 82, HighSetpoint: 95, HeaterID: "H0001", Status: model.StatusOn},
		},
		heaters: map[string]model.Heater{
			"H0001": {ID: "H0001", Name: "Gas Heater", BodyIDs: []string{"B1101"}},
		},
		sensors: map[string]model.Sensor{
			"SSW11": {ID: "SSW11", Name: "Air Sensor", Type: model.SensorTypeAir, Probe: 71.5},
		},
		pumps: map[string]model.Pump{
			"PMP01": {ID: "PMP01", Name: "Main Pump", Subtype: model.PumpSubtypeVS, RPM: 2400, Watts: 600},
		},
		metrics: map[string]pump.Metrics{
			"PMP01": {Speed: 2400, GPM: 74.75, Watts: 612.5},
		},
		owners: map[string]string{"p0101": "PMP01"},
	}
}

func TestPublisher_CircuitState(t *testing.T) {
	broker := &fakeBroker{}
	p := New(testSource(), broker, nil, testLogger())

	p.EntityUpdated(engine.KindCircuit, "C0001")
	p.Close()

	msg, ok := broker.byTopic("poollogic/state/circuit/C0001")
	if !ok {
		t.Fatal("no publish on circuit state topic")
	}
	if !msg.retained {
		t.Error("circuit state must be retained")
	}
	for _, want := range []string{`"id":"C0001"`, `"status":"ON"`, `"featured":true`} {
		if !strings.Contains(msg.payload, want) {
			t.Errorf("payload %q missing %q", msg.payload, want)
		}
	}
}

func TestPublisher_BodyState(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{}
	p := New(testSource(), broker, store, testLogger())

	p.EntityUpdated(engine.KindBody, "B1101")
	p.Close()

	msg, ok := broker.byTopic("poollogic/state/body/B1101")
	if !ok {
		t.Fatal("no publish on body state topic")
	}
	// 80 degrees against an 82 setpoint with a heater assigned.
	if !strings.Contains(msg.payload, `"calling_for_heat":true`) {
		t.Errorf("payload %q missing heat demand flag", msg.payload)
	}
	if len(store.bodies) != 1 || store.bodies[0] != "B1101" {
		t.Errorf("telemetry writes = %v, want [B1101]", store.bodies)
	}
}

func TestPublisher_PumpStateAndTelemetry(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{}
	p := New(testSource(), broker, store, testLogger())

	p.EntityUpdated(engine.KindPump, "PMP01")
	p.Close()

	state, ok := broker.byTopic("poollogic/state/pump/PMP01")
	if !ok {
		t.Fatal("no publish on pump state topic")
	}
	if !state.retained {
		t.Error("pump state must be retained")
	}

	tele, ok := broker.byTopic("poollogic/telemetry/pump/PMP01")
	if !ok {
		t.Fatal("no publish on pump telemetry topic")
	}
	if tele.retained {
		t.Error("telemetry must not be retained")
	}
	for _, want := range []string{`"active":true`, `"speed":2400`, `"speed_units":"RPM"`} {
		if !strings.Contains(tele.payload, want) {
			t.Errorf("telemetry %q missing %q", tele.payload, want)
		}
	}
	if len(store.pumps) != 1 {
		t.Errorf("pump telemetry writes = %v, want one", store.pumps)
	}
}

func TestPublisher_InactivePumpTelemetry(t *testing.T) {
	src := testSource()
	src.metrics["PMP01"] = pump.Metrics{Speed: pump.InactiveSpeedSentinel}
	broker := &fakeBroker{}
	p := New(src, broker, nil, testLogger())

	p.EntityUpdated(engine.KindPump, "PMP01")
	p.Close()

	tele, ok := broker.byTopic("poollogic/telemetry/pump/PMP01")
	if !ok {
		t.Fatal("no publish on pump telemetry topic")
	}
	for _, want := range []string{`"active":false`, `"gpm":0`, `"watts":0`} {
		if !strings.Contains(tele.payload, want) {
			t.Errorf("telemetry %q missing %q", tele.payload, want)
		}
	}
}

func TestPublisher_PumpCircuitRepublishesPump(t *testing.T) {
	broker := &fakeBroker{}
	p := New(testSource(), broker, nil, testLogger())

	p.EntityUpdated(engine.KindPumpCircuit, "p0101")
	p.Close()

	if _, ok := broker.byTopic("poollogic/state/pump/PMP01"); !ok {
		t.Error("pump circuit update should republish the owning pump")
	}
	if _, ok := broker.byTopic("poollogic/telemetry/pump/PMP01"); !ok {
		t.Error("pump circuit update should refresh pump telemetry")
	}
}

func TestPublisher_SensorWritesTelemetry(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{}
	p := New(testSource(), broker, store, testLogger())

	p.EntityUpdated(engine.KindSensor, "SSW11")
	p.Close()

	if _, ok := broker.byTopic("poollogic/state/sensor/SSW11"); !ok {
		t.Error("no publish on sensor state topic")
	}
	if len(store.probes) != 1 || store.probes[0] != "SSW11" {
		t.Errorf("probe writes = %v, want [SSW11]", store.probes)
	}
}

func TestPublisher_VanishedEntitySkipped(t *testing.T) {
	broker := &fakeBroker{}
	p := New(testSource(), broker, nil, testLogger())

	p.EntityUpdated(engine.KindCircuit, "C9999")
	p.Close()

	if n := broker.count(); n != 0 {
		t.Errorf("published %d messages for unknown entity, want 0", n)
	}
}

func TestPublisher_PublishAll(t *testing.T) {
	broker := &fakeBroker{}
	p := New(testSource(), broker, nil, testLogger())

	p.PublishAll()
	p.Close()

	// circuit + body + pump state + pump telemetry.
	if n := broker.count(); n != 4 {
		t.Errorf("published %d messages, want 4", n)
	}
	if got := p.Stats().Published; got != 4 {
		t.Errorf("Stats().Published = %d, want 4", got)
	}
}

func TestPublisher_CloseDrainsQueue(t *testing.T) {
	broker := &fakeBroker{}
	p := New(testSource(), broker, nil, testLogger())

	for n := 0; n < 10; n++ {
		p.EntityUpdated(engine.KindCircuit, "C0001")
	}
	p.Close()

	if n := broker.count(); n != 10 {
		t.Errorf("published %d messages after Close, want 10", n)
	}
}
