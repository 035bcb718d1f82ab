package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/discovery"
	"github.com/nerrad567/pool-logic-core/internal/hub"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/protocol"
	"github.com/nerrad567/pool-logic-core/internal/pump"
	"github.com/nerrad567/pool-logic-core/internal/resilience"
)

// defaultRequestTimeout bounds the wait for a correlated response.
const defaultRequestTimeout = 10 * time.Second

// Config holds session behaviour knobs.
type Config struct {
	// IncludeAllCircuits surfaces every non-legacy circuit as a Feature.
	IncludeAllCircuits bool

	// SupportVariableSpeedPumps gates pump extraction and derivation.
	SupportVariableSpeedPumps bool

	// DiscoveryPacing is the gap between category queries.
	DiscoveryPacing time.Duration

	// DiscoveryTimeout bounds one full discovery cycle.
	DiscoveryTimeout time.Duration

	// RequestTimeout bounds the wait for one correlated response.
	// Default: 10 seconds.
	RequestTimeout time.Duration

	// ParseErrorWarnThreshold and ParseErrorReconnectThreshold are the
	// escalation steps for stream corruption events inside
	// ParseErrorWindow: warn at the first, force a reconnect at the
	// second. Defaults: 5, 20 within 60 seconds.
	ParseErrorWarnThreshold      int
	ParseErrorReconnectThreshold int
	ParseErrorWindow             time.Duration

	// Resilience policies for the outbound command pipeline.
	RateLimit  resilience.RateLimiterConfig
	Retry      resilience.RetryConfig
	DeadLetter resilience.DeadLetterConfig
	Health     resilience.HealthConfig
}

func (cfg *Config) applyDefaults() {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ParseErrorWarnThreshold <= 0 {
		cfg.ParseErrorWarnThreshold = 5
	}
	if cfg.ParseErrorReconnectThreshold <= 0 {
		cfg.ParseErrorReconnectThreshold = 20
	}
	if cfg.ParseErrorWindow <= 0 {
		cfg.ParseErrorWindow = time.Minute
	}
}

// Notifier receives entity change events after live updates are folded
// into the graph. Implementations must not block; they are called from
// the hub's dispatch goroutine.
type Notifier interface {
	EntityUpdated(kind, id string)
}

// Session owns the integration state machine: it drives discovery,
// maintains the typed entity graph, folds live updates into it, and runs
// the guarded outbound command pipeline.
type Session struct {
	client       hub.Connector
	cfg          Config
	log          *logging.Logger
	orchestrator *discovery.Orchestrator

	// Graph state. The write lock is held only for graph swaps and
	// update application, both cheap.
	mu                sync.RWMutex
	system            *model.System
	circuits          map[string]*model.Circuit
	bodies            map[string]*model.Body
	pumps             map[string]*model.Pump
	pumpCircuits      map[string]*model.PumpCircuit
	pumpByPumpCircuit map[string]*model.Pump
	pumpsByCircuit    map[string][]*model.Pump
	heaters           map[string]*model.Heater
	sensors           map[string]*model.Sensor

	// Request correlation by message id.
	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Message

	// Parse error escalation state.
	parseMu     sync.Mutex
	parseEvents []time.Time
	now         func() time.Time

	// Outbound command pipeline guards.
	limiter *resilience.RateLimiter
	retrier *resilience.Retrier
	dlq     *resilience.DeadLetterQueue
	health  *resilience.HealthMonitor

	notifierMu sync.RWMutex
	notifier   Notifier
}

// NewSession wires a session onto a connected hub client and registers
// for its inbound traffic. The entity graph is empty until the first
// Discover completes.
func NewSession(client hub.Connector, cfg Config, log *logging.Logger) *Session {
	cfg.applyDefaults()

	s := &Session{
		client:  client,
		cfg:     cfg,
		log:     log,
		pending: make(map[string]chan *protocol.Message),
		now:     time.Now,
		limiter: resilience.NewRateLimiter(cfg.RateLimit),
		retrier: resilience.NewRetrier(cfg.Retry),
		dlq:     resilience.NewDeadLetterQueue(cfg.DeadLetter),
		health:  resilience.NewHealthMonitor(cfg.Health),
	}
	s.orchestrator = discovery.NewOrchestrator(s, cfg.DiscoveryPacing, cfg.DiscoveryTimeout, log)

	client.SetOnMessage(s.handleMessage)
	client.SetOnDecodeError(func(err error) {
		s.recordParseError("undecodable line: " + err.Error())
	})
	return s
}

// SetNotifier registers the consumer notified of entity changes.
func (s *Session) SetNotifier(n Notifier) {
	s.notifierMu.Lock()
	s.notifier = n
	s.notifierMu.Unlock()
}

// Request sends one command and blocks for its correlated response.
// Implements the discovery orchestrator's requester contract.
func (s *Session) Request(ctx context.Context, req *protocol.Request) (*protocol.Message, error) {
	ch := make(chan *protocol.Message, 1)
	s.pendingMu.Lock()
	s.pending[req.MessageID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, req.MessageID)
		s.pendingMu.Unlock()
	}()

	started := s.now()
	if err := s.client.Send(ctx, req); err != nil {
		s.health.RecordFailure()
		return nil, err
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.health.RecordFailure()
		return nil, ctx.Err()
	case <-timer.C:
		s.health.RecordFailure()
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, req.Command, s.cfg.RequestTimeout)
	case msg := <-ch:
		s.health.RecordSuccess(time.Since(started))
		return msg, nil
	}
}

// Discover runs one full discovery cycle: query every category, merge,
// normalize, swap the entity graph, and subscribe to live updates for
// everything found. Safe to call again at any time; consumers keep the
// old graph until the new one is installed.
func (s *Session) Discover(ctx context.Context) error {
	raw, err := s.orchestrator.Run(ctx)
	if err != nil {
		return err
	}

	sys, err := model.Normalize(raw, model.Options{
		IncludeAllCircuits:        s.cfg.IncludeAllCircuits,
		SupportVariableSpeedPumps: s.cfg.SupportVariableSpeedPumps,
	})
	if err != nil {
		return err
	}

	s.installSystem(sys)
	s.subscribeAll(ctx)

	s.log.Info("entity graph installed",
		"panels", len(sys.Panels),
		"circuits", len(s.circuits),
		"bodies", len(s.bodies),
		"pumps", len(s.pumps),
		"heaters", len(s.heaters),
		"sensors", len(s.sensors))
	return nil
}

// installSystem swaps the graph and rebuilds the id indexes in one
// critical section.
func (s *Session) installSystem(sys *model.System) {
	circuits := make(map[string]*model.Circuit)
	bodies := make(map[string]*model.Body)
	pumps := make(map[string]*model.Pump)
	pumpCircuits := make(map[string]*model.PumpCircuit)
	pumpByPC := make(map[string]*model.Pump)
	heaters := make(map[string]*model.Heater)
	sensors := make(map[string]*model.Sensor)

	for _, p := range sys.Panels {
		for _, c := range p.Circuits {
			circuits[c.ID] = c
		}
		for _, pm := range p.Pumps {
			pumps[pm.ID] = pm
			for _, pc := range pm.Circuits {
				pumpCircuits[pc.ID] = pc
				pumpByPC[pc.ID] = pm
			}
		}
		for _, sn := range p.Sensors {
			sensors[sn.ID] = sn
		}
		for _, m := range p.Modules {
			for _, b := range m.Bodies {
				bodies[b.ID] = b
			}
			for _, h := range m.Heaters {
				heaters[h.ID] = h
			}
		}
	}

	s.mu.Lock()
	s.system = sys
	s.circuits = circuits
	s.bodies = bodies
	s.pumps = pumps
	s.pumpCircuits = pumpCircuits
	s.pumpByPumpCircuit = pumpByPC
	s.heaters = heaters
	s.sensors = sensors
	s.reindexPumpAssociationsLocked()
	s.mu.Unlock()
}

// reindexPumpAssociationsLocked rebuilds the circuit-to-pumps index used
// to fan circuit changes out to the pumps whose derived metrics depend
// on them. Caller holds the write lock.
func (s *Session) reindexPumpAssociationsLocked() {
	idx := make(map[string][]*model.Pump)
	for _, p := range s.pumps {
		seen := make(map[string]bool, len(p.Circuits))
		for _, pc := range p.Circuits {
			if seen[pc.CircuitID] {
				continue
			}
			seen[pc.CircuitID] = true
			idx[pc.CircuitID] = append(idx[pc.CircuitID], p)
		}
	}
	s.pumpsByCircuit = idx
}

// subscribeAll registers for push updates on every discovered object.
// Individual subscription failures are logged, not fatal; the object
// simply stays static until the next cycle.
func (s *Session) subscribeAll(ctx context.Context) {
	s.mu.RLock()
	subs := make(map[string][]string, len(s.circuits)+len(s.bodies)+len(s.pumps))
	for id := range s.circuits {
		subs[id] = circuitKeys
	}
	for id := range s.bodies {
		subs[id] = bodyKeys
	}
	for id := range s.pumps {
		subs[id] = pumpKeys
	}
	for id := range s.pumpCircuits {
		subs[id] = pumpCircuitKeys
	}
	for id := range s.heaters {
		subs[id] = heaterKeys
	}
	for id := range s.sensors {
		subs[id] = sensorKeys
	}
	s.mu.RUnlock()

	for id, keys := range subs {
		if err := s.client.Send(ctx, protocol.NewSubscribeRequest(id, keys)); err != nil {
			s.log.Warn("subscription failed", "object", id, "error", err)
		}
	}
}

// handleMessage is the hub client's inbound callback: correlate
// responses, fold notifications, and track hub-reported parse failures.
func (s *Session) handleMessage(msg *protocol.Message) {
	if msg.IsParseError() {
		s.recordParseError("hub reported parse failure: " + msg.Description)
	}

	if msg.MessageID != "" {
		s.pendingMu.Lock()
		ch, ok := s.pending[msg.MessageID]
		s.pendingMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
			return
		}
	}

	if msg.IsNotify() || len(msg.ObjectList) > 0 {
		s.dispatch(msg.ObjectList)
	}
}

// dispatch folds a batch of object updates into the graph and notifies
// the consumer of what changed. Changes to a circuit or body also raise
// an event for every pump whose derived metrics depend on it, so the
// published pump state never goes stale behind a correlated change.
func (s *Session) dispatch(entries []protocol.ObjectEntry) {
	type event struct{ kind, id string }
	var events []event

	s.mu.Lock()
	reindex := false
	for _, entry := range entries {
		if entry.ObjName == "" || entry.Params == nil {
			continue
		}
		kind, changed := s.applyLocked(entry.ObjName, entry.Params)
		if kind == "" {
			s.log.Debug("update for unknown object", "object", entry.ObjName)
			continue
		}
		if changed {
			events = append(events, event{kind, entry.ObjName})
			if kind == KindPumpCircuit {
				reindex = true
			}
		}
	}
	if reindex {
		// A pump-circuit update may have reassigned its circuit id.
		s.reindexPumpAssociationsLocked()
	}

	direct := make(map[string]bool)
	affected := make(map[string]bool)
	for _, ev := range events {
		switch ev.kind {
		case KindPump:
			direct[ev.id] = true
		case KindCircuit:
			for _, p := range s.pumpsByCircuit[ev.id] {
				affected[p.ID] = true
			}
		case KindBody:
			// Heat-demand inputs feed the synthetic heater circuits.
			for _, p := range s.pumps {
				if p.HasSyntheticCircuit() {
					affected[p.ID] = true
				}
			}
		}
	}
	var derived []string
	for id := range affected {
		if !direct[id] {
			derived = append(derived, id)
		}
	}
	sort.Strings(derived)
	for _, id := range derived {
		events = append(events, event{KindPump, id})
	}
	s.mu.Unlock()

	if len(events) == 0 {
		return
	}
	s.notifierMu.RLock()
	n := s.notifier
	s.notifierMu.RUnlock()
	for _, ev := range events {
		s.log.Debug("entity updated", "kind", ev.kind, "id", ev.id)
		if n != nil {
			n.EntityUpdated(ev.kind, ev.id)
		}
	}
}

// applyLocked routes one update to the right entity. Caller holds the
// write lock. Returns the entity kind, or "" when the id is unknown.
func (s *Session) applyLocked(id string, params map[string]any) (string, bool) {
	if c, ok := s.circuits[id]; ok {
		return KindCircuit, applyCircuit(c, params)
	}
	if b, ok := s.bodies[id]; ok {
		return KindBody, applyBody(b, params)
	}
	if p, ok := s.pumps[id]; ok {
		return KindPump, applyPump(p, params)
	}
	if pc, ok := s.pumpCircuits[id]; ok {
		changed := applyPumpCircuit(pc, params)
		if changed {
			if p, ok := s.pumpByPumpCircuit[id]; ok {
				pc.Speed = p.ClampCircuitSpeed(pc.Speed, pc.Units)
			}
		}
		return KindPumpCircuit, changed
	}
	if h, ok := s.heaters[id]; ok {
		return KindHeater, applyHeater(h, params)
	}
	if sn, ok := s.sensors[id]; ok {
		return KindSensor, applySensor(sn, params)
	}
	return "", false
}

// recordParseError tracks stream corruption events in a rolling window
// and escalates: a warning once the rate is suspicious, a forced
// reconnect once the stream is clearly unusable.
func (s *Session) recordParseError(detail string) {
	s.parseMu.Lock()
	now := s.now()
	cutoff := now.Add(-s.cfg.ParseErrorWindow)
	kept := s.parseEvents[:0]
	for _, t := range s.parseEvents {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.parseEvents = append(kept, now)
	count := len(s.parseEvents)
	escalate := count >= s.cfg.ParseErrorReconnectThreshold
	if escalate {
		s.parseEvents = s.parseEvents[:0]
	}
	s.parseMu.Unlock()

	switch {
	case escalate:
		s.log.Error("persistent stream corruption, forcing reconnect",
			"events_in_window", count, "window", s.cfg.ParseErrorWindow, "detail", detail)
		s.client.ForceReconnect("persistent stream corruption")
	case count == s.cfg.ParseErrorWarnThreshold:
		s.log.Warn("elevated parse error rate",
			"events_in_window", count, "window", s.cfg.ParseErrorWindow, "detail", detail)
	default:
		s.log.Debug("parse error", "detail", detail)
	}
}

// SendCommand admits one write into the guarded outbound pipeline and
// returns without waiting for delivery: unknown objects and rate-limit
// rejections fail synchronously, everything past admission runs on its
// own goroutine. The hub confirms accepted writes through the normal
// NotifyList flow, so callers observe the outcome as entity updates;
// permanently failed writes are parked in the dead letter queue.
func (s *Session) SendCommand(_ context.Context, objName string, params map[string]any) error {
	s.mu.RLock()
	_, known := s.circuits[objName]
	if !known {
		_, known = s.bodies[objName]
	}
	if !known {
		_, known = s.pumps[objName]
	}
	s.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownObject, objName)
	}

	if err := s.limiter.Allow(); err != nil {
		s.park(objName, params, err)
		return fmt.Errorf("%w: %w", ErrCommandRejected, err)
	}

	go s.transmit(objName, params)
	return nil
}

// transmit runs the bounded retry loop off the caller's goroutine. The
// caller's context must not abort an in-flight write, so retries run
// against the background context; each attempt is still bounded by the
// request timeout.
func (s *Session) transmit(objName string, params map[string]any) {
	err := s.retrier.Do(context.Background(), func(ctx context.Context) error {
		msg, err := s.Request(ctx, protocol.NewWriteRequest(objName, params))
		if err != nil {
			return err
		}
		if !msg.IsSuccess() {
			return fmt.Errorf("%w: response %s (%s)", protocol.ErrHubReported, msg.Response, msg.Description)
		}
		return nil
	})
	if err != nil {
		s.park(objName, params, err)
		s.log.Warn("command abandoned after retries", "object", objName, "error", err)
	}
}

// park records an abandoned command in the dead letter queue.
func (s *Session) park(objName string, params map[string]any, cause error) {
	payload, _ := json.Marshal(params)
	s.dlq.Add(resilience.DeadLetter{
		ObjectName: objName,
		Command:    protocol.CmdSetParamList,
		Payload:    string(payload),
		Reason:     cause.Error(),
	})
}

// SetCircuitState switches a circuit on or off.
func (s *Session) SetCircuitState(ctx context.Context, circuitID string, on bool) error {
	status := model.StatusOff
	if on {
		status = model.StatusOn
	}
	return s.SendCommand(ctx, circuitID, map[string]any{model.ParamStatus: string(status)})
}

// SetSetpoint changes a body's heating setpoint.
func (s *Session) SetSetpoint(ctx context.Context, bodyID string, temp float64) error {
	return s.SendCommand(ctx, bodyID, map[string]any{model.ParamLowTemp: fmt.Sprintf("%.0f", temp)})
}

// SetHeatMode changes a body's heat mode selector.
func (s *Session) SetHeatMode(ctx context.Context, bodyID string, mode int) error {
	return s.SendCommand(ctx, bodyID, map[string]any{model.ParamHeatMode: fmt.Sprintf("%d", mode)})
}

// System returns the current entity graph. Consumers treat it as
// read-only; updates mutate it in place under the session's lock.
func (s *Session) System() (*model.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.system == nil {
		return nil, ErrNotDiscovered
	}
	return s.system, nil
}

// PumpMetrics derives the synthetic sensor set for every pump.
func (s *Session) PumpMetrics() map[string]pump.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.system == nil {
		return nil
	}
	out := make(map[string]pump.Metrics, len(s.pumps))
	for id, p := range s.pumps {
		out[id] = pump.Derive(s.system, p)
	}
	return out
}

// Snapshot accessors. Live updates mutate the graph in place under the
// session lock, so consumers on other goroutines (the status publisher,
// the API) read through these copies instead of holding entity pointers.

// CircuitState returns a copy of one circuit's current state.
func (s *Session) CircuitState(id string) (model.Circuit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circuits[id]
	if !ok {
		return model.Circuit{}, false
	}
	return *c, true
}

// BodyState returns a copy of one body's current state. The embedded
// circuit reference is cleared; look the circuit up separately.
func (s *Session) BodyState(id string) (model.Body, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bodies[id]
	if !ok {
		return model.Body{}, false
	}
	out := *b
	out.Circuit = nil
	return out, true
}

// HeaterState returns a copy of one heater's current state.
func (s *Session) HeaterState(id string) (model.Heater, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heaters[id]
	if !ok {
		return model.Heater{}, false
	}
	out := *h
	out.BodyIDs = append([]string(nil), h.BodyIDs...)
	return out, true
}

// SensorState returns a copy of one sensor's current state.
func (s *Session) SensorState(id string) (model.Sensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.sensors[id]
	if !ok {
		return model.Sensor{}, false
	}
	return *sn, true
}

// PumpTelemetry returns a copy of one pump's state together with its
// derived metrics, both taken under the graph lock. The copy's circuit
// association list is cleared.
func (s *Session) PumpTelemetry(id string) (model.Pump, pump.Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pumps[id]
	if !ok || s.system == nil {
		return model.Pump{}, pump.Metrics{}, false
	}
	out := *p
	out.Circuits = nil
	return out, pump.Derive(s.system, p), true
}

// PumpForCircuitEntry resolves the id of the pump owning a pump-circuit
// association.
func (s *Session) PumpForCircuitEntry(pumpCircuitID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pumpByPumpCircuit[pumpCircuitID]
	if !ok {
		return "", false
	}
	return p.ID, true
}

// EntityIDs lists the discovered ids for every entity kind. Used by
// publishers to enumerate the graph without touching live pointers.
func (s *Session) EntityIDs() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, 6)
	for id := range s.circuits {
		out[KindCircuit] = append(out[KindCircuit], id)
	}
	for id := range s.bodies {
		out[KindBody] = append(out[KindBody], id)
	}
	for id := range s.pumps {
		out[KindPump] = append(out[KindPump], id)
	}
	for id := range s.heaters {
		out[KindHeater] = append(out[KindHeater], id)
	}
	for id := range s.sensors {
		out[KindSensor] = append(out[KindSensor], id)
	}
	return out
}

// DeadLetters returns the currently parked commands.
func (s *Session) DeadLetters() []resilience.DeadLetter {
	return s.dlq.Entries()
}

// Health returns the request/response health snapshot.
func (s *Session) Health() resilience.HealthSnapshot {
	return s.health.Snapshot()
}

// HubStats returns the transport-level statistics.
func (s *Session) HubStats() hub.Stats {
	return s.client.Stats()
}
