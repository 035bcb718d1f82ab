// Package engine owns the integration session: the state machine that
// sits between the hub transport and every consumer of pool state.
//
// # Responsibilities
//
// The session drives discovery cycles, normalizes the result into the
// typed entity graph, subscribes to push updates for every discovered
// object, and folds those updates into the graph in place. Consumers
// read the graph through the session and are notified of changes via a
// registered Notifier.
//
// # Outbound Pipeline
//
// Writes to the hub pass through a guarded pipeline: a sliding-window
// rate limiter (reject, not queue), then asynchronous delivery with
// bounded exponential-backoff retries and a dead letter queue holding
// commands abandoned after the retry budget. Admission is synchronous;
// delivery runs off the caller's goroutine, and the hub's NotifyList
// confirmations carry the observable outcome. Commands addressing
// objects absent from the graph are rejected up front.
//
// # Stream Corruption
//
// Undecodable inbound lines and hub-reported parse failures feed a
// rolling-window escalation: an elevated rate logs a warning, a clearly
// unusable stream forces the transport to rebuild the connection.
package engine
