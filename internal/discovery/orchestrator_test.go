package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/protocol"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// fakeRequester answers category queries from a canned table and records
// the categories asked for.
type fakeRequester struct {
	answers map[string][]any
	asked   []string
	fail    string // category to fail with a non-200 response
	block   chan struct{}
}

func (f *fakeRequester) Request(ctx context.Context, req *protocol.Request) (*protocol.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.asked = append(f.asked, req.Arguments)
	if req.Arguments == f.fail {
		return &protocol.Message{Command: req.Command, Response: "400", Description: "bad category"}, nil
	}
	return &protocol.Message{
		Command:  req.Command,
		Response: protocol.StatusOK,
		Answer:   f.answers[req.Arguments],
	}, nil
}

func newTestOrchestrator(req Requester) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(req, DefaultPacing, 5*time.Second, testLogger())
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return o, &slept
}

func TestOrchestrator_QueriesAllCategoriesInOrder(t *testing.T) {
	fake := &fakeRequester{answers: map[string][]any{}}
	o, slept := newTestOrchestrator(fake)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(fake.asked) != len(Categories) {
		t.Fatalf("asked %d categories, want %d", len(fake.asked), len(Categories))
	}
	for i, want := range Categories {
		if fake.asked[i] != want {
			t.Errorf("query %d = %s, want %s", i, fake.asked[i], want)
		}
	}
	// One pacing gap between each pair of queries, none before the first.
	if len(*slept) != len(Categories)-1 {
		t.Errorf("paced %d times, want %d", len(*slept), len(Categories)-1)
	}
	for _, d := range *slept {
		if d != DefaultPacing {
			t.Errorf("pacing = %v, want %v", d, DefaultPacing)
		}
	}
	if o.Cycles() != 1 {
		t.Errorf("Cycles() = %d, want 1", o.Cycles())
	}
}

func TestOrchestrator_MergesCategoryAnswers(t *testing.T) {
	fake := &fakeRequester{answers: map[string][]any{
		"CIRCUITS": {map[string]any{"objnam": "P0001", "params": map[string]any{
			"OBJTYP": "PANEL",
			"OBJLIST": []any{
				map[string]any{"objnam": "C0001", "params": map[string]any{"OBJTYP": "CIRCUIT"}},
			},
		}}},
		"PUMPS": {map[string]any{"objnam": "P0001", "params": map[string]any{
			"SNAME": "Main Panel",
			"OBJLIST": []any{
				map[string]any{"objnam": "PMP01", "params": map[string]any{"OBJTYP": "PUMP"}},
			},
		}}},
	}}
	o, _ := newTestOrchestrator(fake)

	buffer, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(buffer) != 1 {
		t.Fatalf("buffer entries = %d, want 1 merged panel", len(buffer))
	}
	params := buffer[0].(map[string]any)["params"].(map[string]any)
	if params["OBJTYP"] != "PANEL" || params["SNAME"] != "Main Panel" {
		t.Errorf("panel params not merged across categories: %v", params)
	}
	if children := params["OBJLIST"].([]any); len(children) != 2 {
		t.Errorf("children = %d, want circuit and pump", len(children))
	}
}

func TestOrchestrator_FailedCategoryAborts(t *testing.T) {
	fake := &fakeRequester{answers: map[string][]any{}, fail: "HEATERS"}
	o, _ := newTestOrchestrator(fake)

	_, err := o.Run(context.Background())
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("Run() = %v, want ErrQueryFailed", err)
	}
	if o.Cycles() != 0 {
		t.Errorf("Cycles() = %d, want 0 after failed run", o.Cycles())
	}
}

func TestOrchestrator_SingleFlight(t *testing.T) {
	fake := &fakeRequester{answers: map[string][]any{}, block: make(chan struct{})}
	o, _ := newTestOrchestrator(fake)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()

	// Wait for the first run to occupy the slot, then try a second.
	deadline := time.After(2 * time.Second)
	for !o.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Fatalf("concurrent Run() = %v, want ErrInProgress", err)
	}

	close(fake.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	// Slot released: a fresh run is accepted.
	fake.block = nil
	if _, err := o.Run(context.Background()); err != nil {
		t.Errorf("Run() after release = %v, want nil", err)
	}
}

func TestOrchestrator_NullAnswerTolerated(t *testing.T) {
	// Firmware answers sparse categories with null instead of [].
	fake := &fakeRequester{answers: map[string][]any{
		"CIRCUITS": {map[string]any{"objnam": "P0001", "params": map[string]any{"OBJTYP": "PANEL"}}},
	}}
	o, _ := newTestOrchestrator(fake)

	buffer, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(buffer) != 1 {
		t.Errorf("buffer entries = %d, want 1", len(buffer))
	}
}
