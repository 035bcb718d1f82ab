package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Command names used on the wire.
const (
	// CmdGetQuery requests one discovery category from the hub.
	CmdGetQuery = "GetQuery"

	// CmdSendQuery is the hub's answer to a GetQuery.
	CmdSendQuery = "SendQuery"

	// CmdSetParamList writes one or more fields on one or more objects.
	CmdSetParamList = "SetParamList"

	// CmdRequestParamList subscribes to ongoing updates for objects.
	CmdRequestParamList = "RequestParamList"

	// CmdNotifyList is the hub's unsolicited change notification.
	CmdNotifyList = "NotifyList"

	// CmdRequestLogin authenticates the session on hubs that require
	// credentials.
	CmdRequestLogin = "RequestLogin"
)

// QueryHardwareDefinition is the query name used for discovery requests.
const QueryHardwareDefinition = "GetHardwareDefinition"

// StatusOK is the hub's success response code.
const StatusOK = "200"

// parseErrorMarker is the recognizable fragment the hub places in the
// description of responses it failed to parse. Its rate drives the
// escalation policy in the engine.
const parseErrorMarker = "ParseError"

// ObjectEntry is one entry in a request or response objectList.
// Params carries field writes or reported field changes; Keys carries the
// field names of a subscription request.
type ObjectEntry struct {
	ObjName string         `json:"objnam"`
	Params  map[string]any `json:"params,omitempty"`
	Keys    []string       `json:"keys,omitempty"`
}

// Request is an outbound hub command.
type Request struct {
	Command    string        `json:"command"`
	QueryName  string        `json:"queryName,omitempty"`
	Arguments  string        `json:"arguments,omitempty"`
	MessageID  string        `json:"messageID"`
	ObjectList []ObjectEntry `json:"objectList,omitempty"`
}

// Message is a decoded inbound hub message. Discovery answers arrive in
// Answer; live updates and write confirmations arrive in ObjectList.
type Message struct {
	Command     string        `json:"command"`
	QueryName   string        `json:"queryName,omitempty"`
	MessageID   string        `json:"messageID"`
	Response    string        `json:"response,omitempty"`
	Description string        `json:"description,omitempty"`
	Answer      any           `json:"answer,omitempty"`
	ObjectList  []ObjectEntry `json:"objectList,omitempty"`
}

// NewRequest creates a request with a freshly generated message ID.
func NewRequest(command string) *Request {
	return &Request{
		Command:   command,
		MessageID: uuid.NewString(),
	}
}

// NewQueryRequest creates a discovery query for one category.
func NewQueryRequest(category string) *Request {
	req := NewRequest(CmdGetQuery)
	req.QueryName = QueryHardwareDefinition
	req.Arguments = category
	return req
}

// NewWriteRequest creates a SetParamList request for a single object.
func NewWriteRequest(objName string, params map[string]any) *Request {
	req := NewRequest(CmdSetParamList)
	req.ObjectList = []ObjectEntry{{ObjName: objName, Params: params}}
	return req
}

// NewLoginRequest creates a RequestLogin carrying the session
// credentials.
func NewLoginRequest(username, password string) *Request {
	req := NewRequest(CmdRequestLogin)
	req.ObjectList = []ObjectEntry{{
		ObjName: "LOGIN",
		Params:  map[string]any{"USER": username, "PASSWORD": password},
	}}
	return req
}

// NewSubscribeRequest creates a RequestParamList subscription for the given
// object and field names.
func NewSubscribeRequest(objName string, keys []string) *Request {
	req := NewRequest(CmdRequestParamList)
	req.ObjectList = []ObjectEntry{{ObjName: objName, Keys: keys}}
	return req
}

// Encode serialises the request as a single newline-terminated wire line.
func (r *Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrMalformedMessage, err)
	}
	return append(data, '\n'), nil
}

// IsSuccess reports whether the message carries the hub's success status.
// Messages without a response code (unsolicited notifications) count as
// successful.
func (m *Message) IsSuccess() bool {
	return m.Response == "" || m.Response == StatusOK
}

// IsNotify reports whether the message is an unsolicited change
// notification.
func (m *Message) IsNotify() bool {
	return m.Command == CmdNotifyList
}

// IsParseError reports whether the hub's description carries the
// recognizable parse-error marker.
func (m *Message) IsParseError() bool {
	return strings.Contains(m.Description, parseErrorMarker)
}

// decodeLine parses one complete line into a Message.
//
// The line must decode as a JSON object carrying at minimum a command; the
// surrounding braces are the expected bracket structure, anything else is
// a framing failure on this line only.
func decodeLine(line []byte) (*Message, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, fmt.Errorf("%w: missing object brackets", ErrMalformedMessage)
	}

	var msg Message
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Command == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformedMessage)
	}
	return &msg, nil
}
