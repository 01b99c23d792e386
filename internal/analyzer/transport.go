package analyzer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// NotificationHandler handles an incoming notification from the analyzer.
type NotificationHandler func(method string, params json.RawMessage)

// Transport owns one request/response stream to the analyzer process. It
// assigns request ids, correlates responses to pending slots, and dispatches
// notifications. Each pending slot resolves exactly once: by response, by
// timeout, or by stream closure.
type Transport struct {
	reader *bufio.Reader
	// closer is the raw read end of the stream. Closing it is the only
	// way to unblock a read loop parked inside readMessage.
	closer io.Closer
	writer io.Writer
	logger *zap.Logger

	writeMu sync.Mutex // serializes frame writes

	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Message
	handlers map[string]NotificationHandler

	// Consecutive decode failures before the transport gives up on the
	// stream. A single malformed message fails only the exchange in
	// flight; repeated ones indicate an unusable stream.
	maxDecodeErrors int

	closed atomic.Bool
	done   chan struct{}
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger sets the logger. Defaults to zap.NewNop().
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMaxDecodeErrors sets how many consecutive malformed messages are
// tolerated before the transport closes.
func WithMaxDecodeErrors(n int) TransportOption {
	return func(t *Transport) {
		if n > 0 {
			t.maxDecodeErrors = n
		}
	}
}

// NewTransport creates a transport over the analyzer's stdio pipes.
func NewTransport(r io.Reader, w io.Writer, opts ...TransportOption) *Transport {
	t := &Transport{
		reader:          bufio.NewReaderSize(r, 64*1024),
		writer:          w,
		logger:          zap.NewNop(),
		pending:         make(map[int64]chan *Message),
		handlers:        make(map[string]NotificationHandler),
		maxDecodeErrors: 5,
		done:            make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins the read loop in its own goroutine. The loop runs until the
// stream closes, the context is cancelled, or Close is called; it returns
// the error that ended it (nil on clean EOF or shutdown).
func (t *Transport) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.readLoop(ctx)
	}()
	return errCh
}

// Close closes the transport and rejects every outstanding pending slot
// with ErrSessionTerminated. Closing the underlying stream kicks the read
// loop out of its blocking read, so the channel returned by Start resolves.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	if t.closer != nil {
		_ = t.closer.Close()
	}
	t.failAll()
	return nil
}

// IsClosed reports whether the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// failAll drops every pending slot. Waiters observe t.done and report
// ErrSessionTerminated.
func (t *Transport) failAll() {
	t.mu.Lock()
	n := len(t.pending)
	t.pending = make(map[int64]chan *Message)
	t.mu.Unlock()
	if n > 0 {
		t.logger.Warn("failing pending requests on transport close", zap.Int("count", n))
	}
}

// Call sends a request and waits for its response, honoring ctx and the
// given timeout. On timeout it returns ErrRequestTimeout; if ctx is
// cancelled a $/cancelRequest notification is sent so the analyzer can
// abandon the work, and the eventual response is discarded.
func (t *Transport) Call(ctx context.Context, method string, params any, timeout time.Duration, result *json.RawMessage) error {
	if t.closed.Load() {
		return ErrSessionTerminated
	}

	id := t.nextID.Add(1)
	ch := make(chan *Message, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.write(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		// Best effort: tell the analyzer to abandon the request.
		_ = t.Notify("$/cancelRequest", CancelParams{ID: id})
		return ctx.Err()
	case <-timeoutCh:
		t.logger.Warn("request timed out", zap.String("method", method), zap.Int64("id", id), zap.Duration("timeout", timeout))
		_ = t.Notify("$/cancelRequest", CancelParams{ID: id})
		return fmt.Errorf("%s after %s: %w", method, timeout, ErrRequestTimeout)
	case <-t.done:
		return ErrSessionTerminated
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil {
			*result = msg.Result
		}
		return nil
	}
}

// Notify sends a notification; no response is expected.
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrSessionTerminated
	}
	return t.write(&request{JSONRPC: "2.0", Method: method, Params: params})
}

// respond answers a request the analyzer sent to us. We support none of the
// server-to-client requests rust-analyzer may issue, so callers reply with a
// null result (workspace/configuration, progress token creation) to keep the
// exchange balanced.
func (t *Transport) respond(id int64, result any) error {
	body, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Result  any    `json:"result"`
	}{JSONRPC: "2.0", ID: id, Result: result})
	if err != nil {
		return err
	}
	return t.writeRaw(body)
}

// OnNotification registers a handler for analyzer notifications. Handlers
// run on the read loop goroutine and must not block.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// write encodes and sends one message.
func (t *Transport) write(msg *request) error {
	frame, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.writer.Write(frame)
	return err
}

// writeRaw frames and sends an already-marshaled payload.
func (t *Transport) writeRaw(body []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.writer, header); err != nil {
		return err
	}
	_, err := t.writer.Write(body)
	return err
}

// readLoop reads and dispatches messages until the stream ends.
func (t *Transport) readLoop(ctx context.Context) error {
	decodeFailures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.done:
			return nil
		default:
		}

		msg, err := readMessage(t.reader)
		if err != nil {
			if t.closed.Load() || err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			if errors.Is(err, ErrMalformedMessage) {
				decodeFailures++
				t.logger.Error("malformed message from analyzer",
					zap.Error(err), zap.Int("consecutive", decodeFailures))
				if decodeFailures >= t.maxDecodeErrors {
					return fmt.Errorf("giving up after %d consecutive decode failures: %w", decodeFailures, err)
				}
				continue
			}
			return err
		}
		decodeFailures = 0

		t.dispatch(msg)
	}
}

// dispatch routes one decoded message.
func (t *Transport) dispatch(msg *Message) {
	switch msg.Kind {
	case KindResponse:
		t.resolve(msg)
	case KindServerRequest:
		// Answer with null; we advertise no server-to-client capabilities
		// beyond what initialize already negotiated.
		t.logger.Debug("replying null to analyzer request", zap.String("method", msg.Method), zap.Int64("id", msg.ID))
		if err := t.respond(msg.ID, nil); err != nil {
			t.logger.Warn("failed to answer analyzer request", zap.String("method", msg.Method), zap.Error(err))
		}
	case KindNotification:
		t.mu.Lock()
		handler, ok := t.handlers[msg.Method]
		t.mu.Unlock()
		if ok && handler != nil {
			handler(msg.Method, msg.Params)
		}
	}
}

// resolve fulfills the pending slot matching a response. Resolution removes
// the slot, so a late arrival after timeout or cancellation, and any
// duplicate of an already-answered id, both land here with no slot and are
// discarded without affecting anything else.
func (t *Transport) resolve(msg *Message) {
	t.mu.Lock()
	ch, ok := t.pending[msg.ID]
	if ok {
		delete(t.pending, msg.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("discarding response with no pending request", zap.Int64("id", msg.ID))
		return
	}

	// The slot channel is buffered and we are its only sender.
	ch <- msg
}
