package discovery

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/protocol"
)

// Categories lists the hardware definition attribute groups queried
// during a cycle, in the order the hub expects them.
var Categories = []string{
	"CIRCUITS",
	"PUMPS",
	"CHEMS",
	"VALVES",
	"HEATERS",
	"SENSORS",
	"GROUPS",
}

// DefaultPacing is the gap between category queries. The hub's firmware
// drops queries that arrive back to back.
const DefaultPacing = 150 * time.Millisecond

// Requester issues one request and blocks for its correlated response.
type Requester interface {
	Request(ctx context.Context, req *protocol.Request) (*protocol.Message, error)
}

// Orchestrator runs paced, single-flight discovery cycles against the
// hub and folds the per-category answers into one raw definition.
type Orchestrator struct {
	requester Requester
	pacing    time.Duration
	timeout   time.Duration
	log       *logging.Logger

	running atomic.Bool
	cycles  atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a discovery orchestrator. Zero pacing or
// timeout selects the defaults.
func NewOrchestrator(requester Requester, pacing, timeout time.Duration, log *logging.Logger) *Orchestrator {
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		requester: requester,
		pacing:    pacing,
		timeout:   timeout,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Run executes one full discovery cycle and returns the merged raw
// hardware definition. Only one cycle may run at a time; concurrent
// calls fail fast with ErrInProgress rather than queueing.
func (o *Orchestrator) Run(ctx context.Context) ([]any, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer o.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	var buffer []any
	for i, category := range Categories {
		if i > 0 {
			if err := o.sleep(ctx, o.pacing); err != nil {
				return nil, fmt.Errorf("discovery: pacing wait: %w", err)
			}
		}
		answer, err := o.queryCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		buffer = MergeObjectLists(buffer, answer)
	}

	o.cycles.Add(1)
	o.log.Info("discovery cycle complete",
		"categories", len(Categories),
		"objects", len(buffer),
		"duration", time.Since(started))
	return buffer, nil
}

func (o *Orchestrator) queryCategory(ctx context.Context, category string) ([]any, error) {
	req := protocol.NewQueryRequest(category)
	msg, err := o.requester.Request(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrQueryFailed, category, err)
	}
	if !msg.IsSuccess() {
		return nil, fmt.Errorf("%w: %s: response %s (%s)", ErrQueryFailed, category, msg.Response, msg.Description)
	}
	answer, ok := msg.Answer.([]any)
	if !ok {
		// Some firmware revisions answer sparse categories with null.
		o.log.Debug("empty category answer", "category", category)
		return nil, nil
	}
	return answer, nil
}

// Cycles reports how many discovery cycles have completed.
func (o *Orchestrator) Cycles() uint64 {
	return o.cycles.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
