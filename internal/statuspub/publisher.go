package statuspub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/pool-logic-core/internal/engine"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/pump"
)

const (
	// eventQueueSize bounds the update queue. Bursts beyond this drop
	// events rather than block the hub's dispatch goroutine; the next
	// update for the same entity republishes the full state anyway.
	eventQueueSize = 256
)

// Source provides race-free snapshots of the entity graph. Implemented
// by the engine session.
type Source interface {
	CircuitState(id string) (model.Circuit, bool)
	BodyState(id string) (model.Body, bool)
	HeaterState(id string) (model.Heater, bool)
	SensorState(id string) (model.Sensor, bool)
	PumpTelemetry(id string) (model.Pump, pump.Metrics, bool)
	PumpForCircuitEntry(pumpCircuitID string) (string, bool)
	EntityIDs() map[string][]string
}

// Broker is the outbound MQTT surface the publisher needs. Implemented
// by the mqtt client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// TelemetryStore receives time-series samples alongside the MQTT
// publishes. Implemented by the influxdb client; may be nil when the
// integration is disabled.
type TelemetryStore interface {
	WriteBodyTemperature(bodyID, name string, temp, lowSetpoint, highSetpoint float64)
	WriteSensorReading(sensorID, name string, probe float64)
	WritePumpMetrics(pumpID, speedUnits string, speed, gpm, watts float64)
}

// Stats tracks publisher activity.
type Stats struct {
	Published uint64 // state and telemetry messages published
	Dropped   uint64 // events discarded because the queue was full
	Errors    uint64 // publish attempts that returned an error
}

// event is one entity change notification queued for publishing.
type event struct {
	kind string
	id   string
}

// Publisher bridges entity change events to the MQTT state topics and
// the telemetry store.
//
// It implements the engine's notifier contract: EntityUpdated never
// blocks. Events are queued and drained by a single worker goroutine, so
// publishes for one entity are ordered and slow broker acknowledgments
// never back up into the hub's read path.
type Publisher struct {
	source Source
	broker Broker
	store  TelemetryStore
	log    *logging.Logger
	topics mqtt.Topics

	events chan event
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

// New creates a publisher and starts its worker. The store may be nil;
// state then goes to MQTT only.
func New(source Source, broker Broker, store TelemetryStore, log *logging.Logger) *Publisher {
	p := &Publisher{
		source: source,
		broker: broker,
		store:  store,
		log:    log,
		events: make(chan event, eventQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.worker()
	return p
}

// EntityUpdated queues a change event for publishing. Never blocks: when
// the queue is full the event is dropped and counted.
func (p *Publisher) EntityUpdated(kind, id string) {
	select {
	case p.events <- event{kind: kind, id: id}:
	case <-p.quit:
	default:
		p.dropped.Add(1)
		p.log.Warn("event queue full, dropping update", "kind", kind, "id", id)
	}
}

// PublishAll pushes the retained state of every discovered entity. Call
// after each discovery cycle so new subscribers see a complete picture.
func (p *Publisher) PublishAll() {
	for kind, ids := range p.source.EntityIDs() {
		for _, id := range ids {
			p.EntityUpdated(kind, id)
		}
	}
}

// Close stops the worker after it drains queued events.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
	})
}

// Stats returns a snapshot of publisher activity.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
	}
}

// worker drains the event queue. On shutdown it finishes whatever is
// already queued before exiting.
func (p *Publisher) worker() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

// publish resolves an event to its current snapshot and emits it. An
// entity that has vanished from the graph (mid-rediscovery) is skipped.
func (p *Publisher) publish(ev event) {
	switch ev.kind {
	case engine.KindCircuit:
		if c, ok := p.source.CircuitState(ev.id); ok {
			p.publishState(ev.kind, ev.id, circuitDoc(&c))
		}
	case engine.KindBody:
		if b, ok := p.source.BodyState(ev.id); ok {
			p.publishState(ev.kind, ev.id, bodyDoc(&b))
			if p.store != nil {
				p.store.WriteBodyTemperature(b.ID, b.Name, b.Temperature, b.LowSetpoint, b.HighSetpoint)
			}
		}
	case engine.KindPump:
		p.publishPump(ev.id)
	case engine.KindPumpCircuit:
		// A speed or circuit reassignment changes the owning pump's
		// derived metrics; republish the pump instead.
		if pumpID, ok := p.source.PumpForCircuitEntry(ev.id); ok {
			p.publishPump(pumpID)
		}
	case engine.KindHeater:
		if h, ok := p.source.HeaterState(ev.id); ok {
			p.publishState(ev.kind, ev.id, heaterDoc(&h))
		}
	case engine.KindSensor:
		if s, ok := p.source.SensorState(ev.id); ok {
			p.publishState(ev.kind, ev.id, sensorDoc(&s))
			if p.store != nil {
				p.store.WriteSensorReading(s.ID, s.Name, s.Probe)
			}
		}
	default:
		p.log.Debug("ignoring unknown entity kind", "kind", ev.kind, "id", ev.id)
	}
}

// publishPump emits both the retained pump state and the unretained
// telemetry sample.
func (p *Publisher) publishPump(id string) {
	pm, metrics, ok := p.source.PumpTelemetry(id)
	if !ok {
		return
	}
	p.publishState(engine.KindPump, id, pumpDoc(&pm))

	doc := telemetryDoc(&pm, metrics)
	payload, err := json.Marshal(doc)
	if err != nil {
		p.errors.Add(1)
		p.log.Error("marshal telemetry failed", "pump", id, "error", err)
		return
	}
	if err := p.broker.Publish(p.topics.PumpTelemetry(id), payload, 0, false); err != nil {
		p.errors.Add(1)
		p.log.Warn("telemetry publish failed", "pump", id, "error", err)
	} else {
		p.published.Add(1)
	}
	if p.store != nil {
		p.store.WritePumpMetrics(id, doc.SpeedUnits, doc.Speed, doc.GPM, doc.Watts)
	}
}

// publishState marshals a state document and publishes it retained.
func (p *Publisher) publishState(kind, id string, doc any) {
	payload, err := json.Marshal(doc)
	if err != nil {
		p.errors.Add(1)
		p.log.Error("marshal state failed", "kind", kind, "id", id, "error", err)
		return
	}
	if err := p.broker.PublishRetained(p.topics.EntityState(kind, id), payload); err != nil {
		p.errors.Add(1)
		p.log.Warn("state publish failed", "kind", kind, "id", id, "error", err)
		return
	}
	p.published.Add(1)
}
