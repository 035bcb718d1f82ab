package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/hub"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/protocol"
	"github.com/nerrad567/pool-logic-core/internal/pump"
	"github.com/nerrad567/pool-logic-core/internal/resilience"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// fakeConnector satisfies the hub client contract in-process. A
// responder, when set, answers each Send synchronously through the
// registered message callback.
type fakeConnector struct {
	mu            sync.Mutex
	sent          []*protocol.Request
	reconnects    []string
	onMessage     func(*protocol.Message)
	onDecodeError func(error)
	responder     func(req *protocol.Request) *protocol.Message
	sendErr       error
}

func (f *fakeConnector) Send(_ context.Context, req *protocol.Request) error {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	responder, onMessage, sendErr := f.responder, f.onMessage, f.sendErr
	f.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	if responder != nil && onMessage != nil {
		if resp := responder(req); resp != nil {
			go onMessage(resp)
		}
	}
	return nil
}

func (f *fakeConnector) SetOnMessage(cb func(*protocol.Message)) {
	f.mu.Lock()
	f.onMessage = cb
	f.mu.Unlock()
}

func (f *fakeConnector) SetOnDecodeError(cb func(error)) {
	f.mu.Lock()
	f.onDecodeError = cb
	f.mu.Unlock()
}

func (f *fakeConnector) IsConnected() bool { return true }

func (f *fakeConnector) ForceReconnect(reason string) {
	f.mu.Lock()
	f.reconnects = append(f.reconnects, reason)
	f.mu.Unlock()
}

func (f *fakeConnector) Stats() hub.Stats { return hub.Stats{} }
func (f *fakeConnector) Close() error     { return nil }

func (f *fakeConnector) sentByCommand(command string) []*protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Request
	for _, req := range f.sent {
		if req.Command == command {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeConnector) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reconnects)
}

func (f *fakeConnector) deliver(msg *protocol.Message) {
	f.mu.Lock()
	cb := f.onMessage
	f.mu.Unlock()
	cb(msg)
}

func (f *fakeConnector) injectDecodeError(err error) {
	f.mu.Lock()
	cb := f.onDecodeError
	f.mu.Unlock()
	cb(err)
}

func categoryAnswer(t *testing.T, s string) []any {
	t.Helper()
	var out []any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("fixture unmarshal: %v", err)
	}
	return out
}

// discoveryResponder answers category queries from canned answers and
// write requests with success.
func discoveryResponder(t *testing.T) func(req *protocol.Request) *protocol.Message {
	t.Helper()
	answers := map[string][]any{
		"CIRCUITS": categoryAnswer(t, `[
		  {"objnam": "P0001", "params": {"OBJTYP": "PANEL", "SNAME": "Main", "OBJLIST": [
		    {"objnam": "M0101", "params": {"OBJTYP": "MODULE", "OBJLIST": [
		      {"objnam": "C0001", "params": {"OBJTYP": "CIRCUIT", "SUBTYP": "POOL", "SNAME": "Pool", "STATUS": "ON", "FEATR": "ON"}},
		      {"objnam": "B1101", "params": {"OBJTYP": "BODY", "SUBTYP": "POOL", "SNAME": "Pool", "LSTTMP": "78", "LOTMP": "82", "HEATER": "H0001"}},
		      {"objnam": "H0001", "params": {"OBJTYP": "HEATER", "SNAME": "Gas", "BODY": "B1101"}}
		    ]}}
		  ]}}
		]`),
		"PUMPS": categoryAnswer(t, `[
		  {"objnam": "P0001", "params": {"OBJLIST": [
		    {"objnam": "PMP01", "params": {"OBJTYP": "PUMP", "SUBTYP": "SPEED", "SNAME": "Filter",
		      "MIN": "450", "MAX": "3450", "RPM": "1800", "PWR": "320",
		      "OBJLIST": [{"objnam": "p0101", "params": {"CIRCUIT": "C0001", "SPEED": "1800", "SELECT": "RPM"}}]}}
		  ]}}
		]`),
		"SENSORS": categoryAnswer(t, `[
		  {"objnam": "P0001", "params": {"OBJLIST": [
		    {"objnam": "SSW11", "params": {"OBJTYP": "SENSE", "SUBTYP": "AIR", "SNAME": "Air", "PROBE": "71"}}
		  ]}}
		]`),
	}
	return func(req *protocol.Request) *protocol.Message {
		switch req.Command {
		case protocol.CmdGetQuery:
			return &protocol.Message{
				Command:   protocol.CmdSendQuery,
				MessageID: req.MessageID,
				Response:  protocol.StatusOK,
				Answer:    answers[req.Arguments],
			}
		case protocol.CmdSetParamList:
			return &protocol.Message{
				Command:   protocol.CmdSetParamList,
				MessageID: req.MessageID,
				Response:  protocol.StatusOK,
			}
		default:
			return nil
		}
	}
}

func testConfig() Config {
	return Config{
		SupportVariableSpeedPumps: true,
		DiscoveryPacing:           time.Millisecond,
		DiscoveryTimeout:          5 * time.Second,
		RequestTimeout:            2 * time.Second,
		Retry:                     resilience.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
	}
}

func discoveredSession(t *testing.T) (*Session, *fakeConnector) {
	t.Helper()
	fake := &fakeConnector{responder: discoveryResponder(t)}
	s := NewSession(fake, testConfig(), testLogger())
	if err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return s, fake
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("%s never happened", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// recordingNotifier collects entity change events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) EntityUpdated(kind, id string) {
	n.mu.Lock()
	n.events = append(n.events, kind+":"+id)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func TestSession_DiscoverBuildsGraph(t *testing.T) {
	s, fake := discoveredSession(t)

	sys, err := s.System()
	if err != nil {
		t.Fatalf("System() error = %v", err)
	}
	if len(sys.Panels) != 1 || sys.Panels[0].ID != "P0001" {
		t.Fatalf("panels = %+v, want P0001", sys.Panels)
	}
	if sys.CircuitByID("C0001") == nil {
		t.Error("circuit C0001 missing from graph")
	}
	if sys.BodyByID("B1101") == nil {
		t.Error("body B1101 missing from graph")
	}
	if len(sys.Panels[0].Pumps) != 1 {
		t.Errorf("pumps = %d, want 1", len(sys.Panels[0].Pumps))
	}

	// Every discovered object gets a push subscription.
	subs := fake.sentByCommand(protocol.CmdRequestParamList)
	// circuit + body + heater + pump + pump circuit + sensor
	if len(subs) != 6 {
		t.Errorf("subscriptions = %d, want 6", len(subs))
	}
}

func TestSession_SystemBeforeDiscovery(t *testing.T) {
	s := NewSession(&fakeConnector{}, testConfig(), testLogger())
	if _, err := s.System(); !errors.Is(err, ErrNotDiscovered) {
		t.Errorf("System() = %v, want ErrNotDiscovered", err)
	}
}

func TestSession_DispatchFoldsCircuitUpdate(t *testing.T) {
	s, fake := discoveredSession(t)
	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "C0001", Params: map[string]any{"STATUS": "OFF"}},
		},
	})

	sys, _ := s.System()
	if sys.CircuitByID("C0001").Status != model.StatusOff {
		t.Error("circuit status not folded into graph")
	}
	// PMP01 runs against C0001, so the circuit change also republishes
	// the pump's derived state.
	events := notifier.snapshot()
	want := []string{"circuit:C0001", "pump:PMP01"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestSession_CircuitChangeRecomputesPumpMetrics(t *testing.T) {
	s, fake := discoveredSession(t)

	if got := s.PumpMetrics()["PMP01"].Speed; got != 1800 {
		t.Fatalf("initial derived speed = %v, want 1800", got)
	}

	// The pump's only circuit goes off: the derived speed must fall to
	// the inactive sentinel, not linger at the last active value.
	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "C0001", Params: map[string]any{"STATUS": "OFF"}},
		},
	})

	if got := s.PumpMetrics()["PMP01"].Speed; got != pump.InactiveSpeedSentinel {
		t.Errorf("derived speed after circuit off = %v, want sentinel", got)
	}
}

func TestSession_DispatchPartialUpdateLeavesOtherFields(t *testing.T) {
	s, fake := discoveredSession(t)

	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "B1101", Params: map[string]any{"LSTTMP": "80"}},
		},
	})

	sys, _ := s.System()
	b := sys.BodyByID("B1101")
	if b.Temperature != 80 {
		t.Errorf("Temperature = %v, want 80", b.Temperature)
	}
	if b.LowSetpoint != 82 || b.HeaterID != "H0001" {
		t.Errorf("unrelated fields disturbed: %+v", b)
	}
}

func TestSession_DispatchNoChangeNoEvent(t *testing.T) {
	s, fake := discoveredSession(t)
	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	// Same value as already held: no event.
	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "C0001", Params: map[string]any{"STATUS": "ON"}},
		},
	})
	if events := notifier.snapshot(); len(events) != 0 {
		t.Errorf("events = %v, want none for no-op update", events)
	}
}

func TestSession_DispatchUnknownObjectIgnored(t *testing.T) {
	s, fake := discoveredSession(t)
	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "Z9999", Params: map[string]any{"STATUS": "ON"}},
			{ObjName: "C0001", Params: map[string]any{"STATUS": "OFF"}},
		},
	})

	// The unknown object must not stop the rest of the batch.
	sys, _ := s.System()
	if sys.CircuitByID("C0001").Status != model.StatusOff {
		t.Error("valid update after unknown object was lost")
	}
}

func TestSession_PumpCircuitUpdateFlowsIntoMetrics(t *testing.T) {
	s, fake := discoveredSession(t)

	before := s.PumpMetrics()["PMP01"]
	if before.Speed != 1800 {
		t.Fatalf("initial derived speed = %v, want 1800", before.Speed)
	}

	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "p0101", Params: map[string]any{"SPEED": "2600"}},
		},
	})

	after := s.PumpMetrics()["PMP01"]
	if after.Speed != 2600 {
		t.Errorf("derived speed = %v, want 2600 after association update", after.Speed)
	}
	if after.Watts <= before.Watts {
		t.Errorf("derived draw did not rise with speed: %v -> %v", before.Watts, after.Watts)
	}
}

// heatPumpResponder is discoveryResponder with the filter pump also
// associated to an internal heater circuit.
func heatPumpResponder(t *testing.T) func(req *protocol.Request) *protocol.Message {
	t.Helper()
	base := discoveryResponder(t)
	pumps := categoryAnswer(t, `[
	  {"objnam": "P0001", "params": {"OBJLIST": [
	    {"objnam": "PMP01", "params": {"OBJTYP": "PUMP", "SUBTYP": "SPEED", "SNAME": "Filter",
	      "MIN": "450", "MAX": "3450", "RPM": "1800", "PWR": "320",
	      "OBJLIST": [
	        {"objnam": "p0101", "params": {"CIRCUIT": "C0001", "SPEED": "1800", "SELECT": "RPM"}},
	        {"objnam": "p0102", "params": {"CIRCUIT": "X0051", "SPEED": "2400", "SELECT": "RPM"}}
	      ]}}
	  ]}}
	]`)
	return func(req *protocol.Request) *protocol.Message {
		resp := base(req)
		if resp != nil && req.Command == protocol.CmdGetQuery && req.Arguments == "PUMPS" {
			resp.Answer = pumps
		}
		return resp
	}
}

func TestSession_BodyHeatDemandRepublishesPump(t *testing.T) {
	fake := &fakeConnector{responder: heatPumpResponder(t)}
	s := NewSession(fake, testConfig(), testLogger())
	if err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	// B1101 starts at 78 against a setpoint of 82: the heater circuit's
	// 2400 RPM association wins over the 1800 RPM pool circuit.
	if got := s.PumpMetrics()["PMP01"].Speed; got != 2400 {
		t.Fatalf("initial derived speed = %v, want 2400 under heat demand", got)
	}

	notifier := &recordingNotifier{}
	s.SetNotifier(notifier)

	// The body warms past its setpoint: demand ends, and the pump's
	// derived state must be republished alongside the body change.
	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "B1101", Params: map[string]any{"LSTTMP": "85"}},
		},
	})

	events := notifier.snapshot()
	want := []string{"body:B1101", "pump:PMP01"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
	if got := s.PumpMetrics()["PMP01"].Speed; got != 1800 {
		t.Errorf("derived speed after demand ends = %v, want 1800", got)
	}
}

func TestSession_PumpCircuitSpeedUpdateClamped(t *testing.T) {
	s, fake := discoveredSession(t)

	// A live update pushing the association past the pump's declared
	// range is bounded to it.
	fake.deliver(&protocol.Message{
		Command: protocol.CmdNotifyList,
		ObjectList: []protocol.ObjectEntry{
			{ObjName: "p0101", Params: map[string]any{"SPEED": "9999"}},
		},
	})

	if got := s.PumpMetrics()["PMP01"].Speed; got != 3450 {
		t.Errorf("derived speed = %v, want clamp to 3450", got)
	}
}

func TestSession_SetCircuitState(t *testing.T) {
	s, fake := discoveredSession(t)

	if err := s.SetCircuitState(context.Background(), "C0001", false); err != nil {
		t.Fatalf("SetCircuitState() error = %v", err)
	}

	// Delivery runs off the caller's goroutine.
	waitFor(t, "write transmitted", func() bool {
		return len(fake.sentByCommand(protocol.CmdSetParamList)) == 1
	})
	entry := fake.sentByCommand(protocol.CmdSetParamList)[0].ObjectList[0]
	if entry.ObjName != "C0001" || entry.Params["STATUS"] != "OFF" {
		t.Errorf("write = %+v, want C0001 STATUS OFF", entry)
	}
}

func TestSession_SendCommand_ReturnsBeforeResponse(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 300 * time.Millisecond
	fake := &fakeConnector{responder: discoveryResponder(t)}
	s := NewSession(fake, cfg, testLogger())
	if err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	// The hub goes quiet on writes; the caller must not be held for the
	// request timeout.
	base := discoveryResponder(t)
	fake.mu.Lock()
	fake.responder = func(req *protocol.Request) *protocol.Message {
		if req.Command == protocol.CmdSetParamList {
			return nil
		}
		return base(req)
	}
	fake.mu.Unlock()

	started := time.Now()
	if err := s.SetCircuitState(context.Background(), "C0001", true); err != nil {
		t.Fatalf("SetCircuitState() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed > 100*time.Millisecond {
		t.Errorf("SetCircuitState blocked for %v", elapsed)
	}

	// The abandoned write surfaces in the dead letter queue.
	waitFor(t, "dead letter recorded", func() bool {
		return len(s.DeadLetters()) == 1
	})
}

func TestSession_SendCommand_UnknownObject(t *testing.T) {
	s, _ := discoveredSession(t)

	err := s.SendCommand(context.Background(), "Z9999", map[string]any{"STATUS": "ON"})
	if !errors.Is(err, ErrUnknownObject) {
		t.Fatalf("SendCommand() = %v, want ErrUnknownObject", err)
	}
}

func TestSession_SendCommand_FailureParked(t *testing.T) {
	fake := &fakeConnector{responder: discoveryResponder(t)}
	s := NewSession(fake, testConfig(), testLogger())
	if err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	// Hub now rejects writes.
	fake.mu.Lock()
	base := discoveryResponder(t)
	fake.responder = func(req *protocol.Request) *protocol.Message {
		if req.Command == protocol.CmdSetParamList {
			return &protocol.Message{
				Command:   protocol.CmdSetParamList,
				MessageID: req.MessageID,
				Response:  "400",
			}
		}
		return base(req)
	}
	fake.mu.Unlock()

	// Admission succeeds; the rejection surfaces asynchronously in the
	// dead letter queue.
	if err := s.SetCircuitState(context.Background(), "C0001", true); err != nil {
		t.Fatalf("SetCircuitState() error = %v", err)
	}

	waitFor(t, "dead letter recorded", func() bool {
		return len(s.DeadLetters()) == 1
	})
	letters := s.DeadLetters()
	if letters[0].ObjectName != "C0001" || letters[0].Command != protocol.CmdSetParamList {
		t.Errorf("dead letter = %+v", letters[0])
	}
}

func TestSession_SendCommand_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = resilience.RateLimiterConfig{Capacity: 1, Window: time.Hour}
	fake := &fakeConnector{responder: discoveryResponder(t)}
	s := NewSession(fake, cfg, testLogger())
	if err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if err := s.SetCircuitState(context.Background(), "C0001", true); err != nil {
		t.Fatalf("first command error = %v", err)
	}
	err := s.SetCircuitState(context.Background(), "C0001", false)
	if !errors.Is(err, resilience.ErrRateLimited) {
		t.Fatalf("second command = %v, want ErrRateLimited", err)
	}
	if len(s.DeadLetters()) != 1 {
		t.Errorf("rejected command not parked")
	}
}

func TestSession_ParseErrorEscalation(t *testing.T) {
	cfg := testConfig()
	cfg.ParseErrorWarnThreshold = 2
	cfg.ParseErrorReconnectThreshold = 3
	cfg.ParseErrorWindow = time.Minute
	fake := &fakeConnector{}
	NewSession(fake, cfg, testLogger())

	fake.injectDecodeError(protocol.ErrMalformedMessage)
	fake.injectDecodeError(protocol.ErrMalformedMessage)
	if fake.reconnectCount() != 0 {
		t.Fatal("reconnect forced below threshold")
	}

	fake.injectDecodeError(protocol.ErrMalformedMessage)
	if fake.reconnectCount() != 1 {
		t.Fatalf("reconnects = %d, want 1 at threshold", fake.reconnectCount())
	}

	// Escalation resets the window: the next error starts a fresh count.
	fake.injectDecodeError(protocol.ErrMalformedMessage)
	if fake.reconnectCount() != 1 {
		t.Errorf("reconnects = %d, want still 1 after reset", fake.reconnectCount())
	}
}

func TestSession_ParseErrorWindowExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.ParseErrorReconnectThreshold = 3
	cfg.ParseErrorWindow = time.Minute
	fake := &fakeConnector{}
	s := NewSession(fake, cfg, testLogger())

	current := time.Unix(5000, 0)
	s.now = func() time.Time { return current }

	fake.injectDecodeError(protocol.ErrMalformedMessage)
	fake.injectDecodeError(protocol.ErrMalformedMessage)

	// The window slides past the first two events before the third.
	current = current.Add(2 * time.Minute)
	fake.injectDecodeError(protocol.ErrMalformedMessage)
	if fake.reconnectCount() != 0 {
		t.Errorf("reconnect forced from stale events outside the window")
	}
}

func TestSession_HubParseErrorResponseCounts(t *testing.T) {
	cfg := testConfig()
	cfg.ParseErrorReconnectThreshold = 2
	fake := &fakeConnector{}
	NewSession(fake, cfg, testLogger())

	for n := 0; n < 2; n++ {
		fake.deliver(&protocol.Message{
			Command:     protocol.CmdSendQuery,
			Response:    "400",
			Description: "ParseError: unexpected token",
		})
	}
	if fake.reconnectCount() != 1 {
		t.Errorf("reconnects = %d, want 1 from hub-reported parse failures", fake.reconnectCount())
	}
}

func TestSession_RequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	fake := &fakeConnector{} // no responder: responses never arrive
	s := NewSession(fake, cfg, testLogger())

	_, err := s.Request(context.Background(), protocol.NewQueryRequest("CIRCUITS"))
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Request() = %v, want ErrRequestTimeout", err)
	}
	if s.Health().ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", s.Health().ConsecutiveFailures)
	}
}
