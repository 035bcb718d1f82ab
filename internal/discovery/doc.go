// Package discovery builds the raw hardware definition by querying the
// hub one attribute category at a time and merging the answers.
//
// # Why Categories
//
// A single full-definition query overruns the hub's response buffer on
// larger installations, so the definition is fetched as a fixed sequence
// of category queries with a pacing delay between them. Each answer is a
// partial object tree; the recursive objnam-keyed merge folds them into
// one.
//
// # Merge Guarantees
//
// The merge is idempotent and order-tolerant, so a retried or
// reordered category cannot corrupt the buffer. Keys that would be
// structurally meaningful to JSON consumers (__proto__ and friends) are
// never merged from the wire.
//
// # Concurrency
//
// Cycles are single-flight: a second Run while one is active fails fast
// with ErrInProgress instead of queueing behind it.
package discovery
