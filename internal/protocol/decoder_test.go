package protocol

import (
	"errors"
	"strings"
	"testing"
)

const notifyLine = `{"command":"NotifyList","messageID":"6f1b9f36-6bc0-43a3-9d00-1234567890ab","objectList":[{"objnam":"C0001","params":{"STATUS":"ON"}}]}` + "\n"

func TestDecoder_SingleMessage(t *testing.T) {
	d := NewDecoder(0)

	msgs := d.Feed([]byte(notifyLine))
	if len(msgs) != 1 {
		t.Fatalf("Feed() returned %d messages, want 1", len(msgs))
	}

	msg := msgs[0]
	if msg.Command != CmdNotifyList {
		t.Errorf("Command = %q, want %q", msg.Command, CmdNotifyList)
	}
	if len(msg.ObjectList) != 1 || msg.ObjectList[0].ObjName != "C0001" {
		t.Errorf("ObjectList = %+v, want one entry for C0001", msg.ObjectList)
	}
	if got := msg.ObjectList[0].Params["STATUS"]; got != "ON" {
		t.Errorf("STATUS = %v, want ON", got)
	}
}

func TestDecoder_ArbitrarySplitsDecodeIdentically(t *testing.T) {
	// The framing invariant: any split of one valid message across chunks
	// decodes to exactly the same single message as unsplit delivery.
	line := []byte(notifyLine)

	for split := 1; split < len(line); split++ {
		d := NewDecoder(0)

		first := d.Feed(line[:split])
		rest := d.Feed(line[split:])

		total := len(first) + len(rest)
		if total != 1 {
			t.Fatalf("split at %d: decoded %d messages, want 1", split, total)
		}
		msg := append(first, rest...)[0]
		if msg.Command != CmdNotifyList || msg.ObjectList[0].ObjName != "C0001" {
			t.Fatalf("split at %d: decoded wrong message: %+v", split, msg)
		}
		if d.Pending() != 0 {
			t.Fatalf("split at %d: %d bytes left pending", split, d.Pending())
		}
	}
}

func TestDecoder_MultipleMessagesOneChunk(t *testing.T) {
	d := NewDecoder(0)

	chunk := notifyLine + `{"command":"SendQuery","messageID":"a","response":"200"}` + "\n"
	msgs := d.Feed([]byte(chunk))
	if len(msgs) != 2 {
		t.Fatalf("Feed() returned %d messages, want 2", len(msgs))
	}
	if msgs[1].Command != CmdSendQuery {
		t.Errorf("second Command = %q, want %q", msgs[1].Command, CmdSendQuery)
	}
}

func TestDecoder_MalformedLineIsolated(t *testing.T) {
	d := NewDecoder(0)

	var dropped []error
	d.SetOnError(func(err error, _ []byte) { dropped = append(dropped, err) })

	chunk := "this is not json\n" + notifyLine + "{\"unterminated\":\n"
	msgs := d.Feed([]byte(chunk))

	if len(msgs) != 1 {
		t.Fatalf("Feed() returned %d messages, want 1 (good line survives bad siblings)", len(msgs))
	}
	if len(dropped) != 2 {
		t.Fatalf("error callback fired %d times, want 2", len(dropped))
	}
	for _, err := range dropped {
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("dropped error = %v, want ErrMalformedMessage", err)
		}
	}
	if d.MalformedCount() != 2 {
		t.Errorf("MalformedCount() = %d, want 2", d.MalformedCount())
	}
}

func TestDecoder_MissingBracketsDropped(t *testing.T) {
	d := NewDecoder(0)

	var gotErr error
	d.SetOnError(func(err error, _ []byte) { gotErr = err })

	msgs := d.Feed([]byte("\"just a string\"\n"))
	if len(msgs) != 0 {
		t.Fatalf("Feed() returned %d messages, want 0", len(msgs))
	}
	if !errors.Is(gotErr, ErrMalformedMessage) {
		t.Errorf("error = %v, want ErrMalformedMessage", gotErr)
	}
}

func TestDecoder_BlankLinesIgnored(t *testing.T) {
	d := NewDecoder(0)
	msgs := d.Feed([]byte("\r\n\n" + notifyLine))
	if len(msgs) != 1 {
		t.Fatalf("Feed() returned %d messages, want 1", len(msgs))
	}
}

func TestDecoder_OverflowResetsBuffer(t *testing.T) {
	d := NewDecoder(128)

	var gotErr error
	d.SetOnError(func(err error, _ []byte) { gotErr = err })

	// Feed an unterminated line past the cap.
	if msgs := d.Feed([]byte(strings.Repeat("x", 100))); len(msgs) != 0 {
		t.Fatal("unexpected messages from partial line")
	}
	if msgs := d.Feed([]byte(strings.Repeat("x", 100))); len(msgs) != 0 {
		t.Fatal("unexpected messages after overflow")
	}

	if !errors.Is(gotErr, ErrBufferOverflow) {
		t.Fatalf("error = %v, want ErrBufferOverflow", gotErr)
	}
	if d.OverflowCount() != 1 {
		t.Errorf("OverflowCount() = %d, want 1", d.OverflowCount())
	}

	// The decoder must recover: a fresh valid message decodes normally.
	// The second 100-byte chunk is still buffered as a partial line, so
	// terminate it first; that line is then dropped as malformed.
	d.Feed([]byte("\n"))
	msgs := d.Feed([]byte(notifyLine))
	if len(msgs) != 1 {
		t.Fatalf("Feed() after overflow returned %d messages, want 1", len(msgs))
	}
}

func TestDecoder_CRLFTolerated(t *testing.T) {
	d := NewDecoder(0)
	line := strings.TrimSuffix(notifyLine, "\n") + "\r\n"
	msgs := d.Feed([]byte(line))
	if len(msgs) != 1 {
		t.Fatalf("Feed() returned %d messages, want 1", len(msgs))
	}
}
