package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// SanitizeRequest validates a request before transmission.
//
// The message ID must be a well-formed UUID; a missing or malformed ID is
// regenerated rather than rejected, so a request is never lost to a bad
// ID. Free-text fields (query arguments, object names, string parameter
// values) are rejected outright if they contain control sequences, since
// an embedded line terminator would desynchronise the line protocol.
//
// Returns:
//   - error: ErrUnsafeText if any free-text field is unsafe
func SanitizeRequest(req *Request) error {
	if _, err := uuid.Parse(req.MessageID); err != nil {
		req.MessageID = uuid.NewString()
	}

	if err := checkText("arguments", req.Arguments); err != nil {
		return err
	}
	for _, entry := range req.ObjectList {
		if err := checkText("objnam", entry.ObjName); err != nil {
			return err
		}
		for key, value := range entry.Params {
			if err := checkText("param "+key, key); err != nil {
				return err
			}
			if s, ok := value.(string); ok {
				if err := checkText("param "+key, s); err != nil {
					return err
				}
			}
		}
		for _, key := range entry.Keys {
			if err := checkText("key", key); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkText rejects strings carrying ASCII control characters, including
// the line terminators that would break message framing.
func checkText(field, s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return fmt.Errorf("%w: %s contains control byte 0x%02x", ErrUnsafeText, field, s[i])
		}
	}
	return nil
}
