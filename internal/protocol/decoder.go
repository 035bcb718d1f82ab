package protocol

import (
	"bytes"
	"fmt"
	"sync/atomic"
)

// DefaultMaxBuffer is the default cap on the line-assembly buffer.
const DefaultMaxBuffer = 64 * 1024

// Decoder assembles newline-delimited protocol messages from an arbitrary
// stream of byte chunks.
//
// The transport may split or coalesce messages at any byte boundary; the
// decoder's contract is that message boundaries are recovered regardless of
// chunking. An incomplete trailing line is retained verbatim until its
// terminator arrives.
//
// The assembly buffer is bounded: a line that would grow past the cap is
// discarded wholesale and the buffer reset, so a corrupt peer can never
// grow memory without limit.
//
// Decoder is not safe for concurrent use; the connection read loop is its
// single caller.
type Decoder struct {
	buf       bytes.Buffer
	maxBuffer int

	// onError receives per-line decode failures and overflow events.
	// Errors never abort sibling lines.
	onError func(err error, fragment []byte)

	// Counters are atomic so stats snapshots can be taken from other
	// goroutines without coordinating with the read loop.
	malformed atomic.Uint64
	overflows atomic.Uint64
}

// NewDecoder creates a decoder with the given buffer cap.
// A cap of zero or less selects DefaultMaxBuffer.
func NewDecoder(maxBuffer int) *Decoder {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Decoder{maxBuffer: maxBuffer}
}

// SetOnError sets the callback invoked for each dropped line or overflow.
// The fragment is the offending raw bytes, for diagnostics.
func (d *Decoder) SetOnError(fn func(err error, fragment []byte)) {
	d.onError = fn
}

// Feed appends a chunk to the assembly buffer and returns every complete
// message it now contains.
//
// Malformed lines are reported through the error callback and skipped;
// they never affect other buffered lines. If the buffer would exceed its
// cap, the whole buffer is discarded and reset before the chunk's
// remainder is considered.
func (d *Decoder) Feed(chunk []byte) []*Message {
	if d.buf.Len()+len(chunk) > d.maxBuffer {
		d.overflows.Add(1)
		d.reportError(fmt.Errorf("%w: %d bytes exceeds cap %d",
			ErrBufferOverflow, d.buf.Len()+len(chunk), d.maxBuffer), nil)
		d.buf.Reset()
		// An oversized single chunk can never frame a valid line.
		if len(chunk) > d.maxBuffer {
			return nil
		}
	}
	d.buf.Write(chunk)

	var msgs []*Message
	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}

		line := make([]byte, idx)
		copy(line, data[:idx])
		d.buf.Next(idx + 1)

		msg, err := decodeLine(line)
		if err != nil {
			d.malformed.Add(1)
			d.reportError(err, line)
			continue
		}
		if msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Reset discards any partially assembled line. Call when the underlying
// stream is replaced, so a fragment from the old stream cannot prefix the
// first line of the new one. Must be called from the Feed caller's
// goroutine.
func (d *Decoder) Reset() {
	d.buf.Reset()
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

// MalformedCount returns the number of lines dropped as malformed.
func (d *Decoder) MalformedCount() uint64 {
	return d.malformed.Load()
}

// OverflowCount returns the number of buffer overflow resets.
func (d *Decoder) OverflowCount() uint64 {
	return d.overflows.Load()
}

func (d *Decoder) reportError(err error, fragment []byte) {
	if d.onError != nil {
		d.onError(err, fragment)
	}
}
