package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The analyzer speaks the LSP base protocol: each message is a header block
// ("Content-Length: N\r\n" plus optional extra headers, then a blank line)
// followed by exactly N bytes of JSON payload.

// request is the wire form of an outgoing request or notification.
// Notifications omit the id.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// MessageKind distinguishes the three shapes of incoming messages.
type MessageKind int

const (
	// KindResponse is a reply to one of our requests (id + result or error).
	KindResponse MessageKind = iota
	// KindServerRequest is a request from the analyzer that expects a reply.
	KindServerRequest
	// KindNotification is an unsolicited message with no id.
	KindNotification
)

// Message is one decoded incoming message.
type Message struct {
	Kind   MessageKind
	ID     int64
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *RPCError
}

// encodeMessage serializes a request or notification into wire framing.
func encodeMessage(msg *request) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out, nil
}

// readMessage reads one complete framed message from r. It returns io.EOF
// unwrapped on clean stream closure, and wraps ErrMalformedMessage for
// framing or structural errors.
func readMessage(r *bufio.Reader) (*Message, error) {
	var contentLength int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break // end of headers
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedMessage, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "content-length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad content length %q", ErrMalformedMessage, value)
			}
			contentLength = n
		}
		// Content-Type and other headers are ignored.
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrMalformedMessage)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	return decodeMessage(body)
}

// decodeMessage classifies a raw JSON payload as a response, a request from
// the analyzer, or a notification.
func decodeMessage(body []byte) (*Message, error) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch {
	case probe.ID != nil && probe.Method == "":
		if probe.Result == nil && probe.Error == nil {
			return nil, fmt.Errorf("%w: response %d has neither result nor error", ErrMalformedMessage, *probe.ID)
		}
		return &Message{Kind: KindResponse, ID: *probe.ID, Result: probe.Result, Error: probe.Error}, nil
	case probe.ID != nil:
		return &Message{Kind: KindServerRequest, ID: *probe.ID, Method: probe.Method, Params: probe.Params}, nil
	case probe.Method != "":
		return &Message{Kind: KindNotification, Method: probe.Method, Params: probe.Params}, nil
	default:
		return nil, fmt.Errorf("%w: message has neither id nor method", ErrMalformedMessage)
	}
}
