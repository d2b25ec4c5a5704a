package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
)

// JSON-RPC and LSP error codes used by the server.
const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeInternalError    = -32603
	codeNotInitialized   = -32002
	codeRequestCancelled = -32800
)

const maxPayload = 64 << 20

var errNoContentLength = errors.New("jsonrpc: missing Content-Length header")

// readFrame reads one header block and the payload it announces. A clean
// end of input between frames is reported as io.EOF.
func readFrame(r *textproto.Reader) ([]byte, error) {
	hdr, err := r.ReadMIMEHeader()
	if err != nil {
		if errors.Is(err, io.EOF) && len(hdr) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("jsonrpc: read header: %w", err)
	}
	if ct := hdr.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
				return nil, fmt.Errorf("jsonrpc: unsupported charset %q", cs)
			}
		}
	}
	raw := hdr.Get("Content-Length")
	if raw == "" {
		return nil, errNoContentLength
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("jsonrpc: bad Content-Length %q", raw)
	}
	if n > maxPayload {
		return nil, fmt.Errorf("jsonrpc: payload of %d bytes exceeds %d", n, maxPayload)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.R, payload); err != nil {
		return nil, fmt.Errorf("jsonrpc: read payload: %w", err)
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// conn is the client connection. Reads happen on the server loop only;
// writes may come from any goroutine and are serialized.
type conn struct {
	in *textproto.Reader

	mu  sync.Mutex
	out *bufio.Writer
}

func newConn(in io.Reader, out io.Writer) *conn {
	return &conn{in: textproto.NewReader(bufio.NewReader(in)), out: bufio.NewWriter(out)}
}

// read returns the next message. A payload that is not valid JSON yields
// a *rpcError with codeParseError and a nil message; the stream stays
// usable.
func (c *conn) read() (*rpcMessage, error) {
	payload, err := readFrame(c.in)
	if err != nil {
		return nil, err
	}
	var msg rpcMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &rpcError{Code: codeParseError, Message: err.Error()}
	}
	if msg.JSONRPC != "2.0" {
		return &msg, &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", msg.JSONRPC)}
	}
	return &msg, nil
}

func (c *conn) write(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeFrame(c.out, payload); err != nil {
		return err
	}
	return c.out.Flush()
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

// requestKey folds the spellings of a request id into one map key:
// 7 and 7.0 share a key, "7" gets its own.
func requestKey(id json.RawMessage) (string, bool) {
	var v any
	if len(id) == 0 || json.Unmarshal(id, &v) != nil {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return "s:" + v, true
	case float64:
		return "n:" + strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// inflight tracks requests served off the read loop so $/cancelRequest
// can stop them.
type inflight struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{cancels: make(map[string]context.CancelFunc)}
}

// begin derives the context of request id. The returned func must be
// called once the reply is sent.
func (f *inflight) begin(parent context.Context, id json.RawMessage) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	key, ok := requestKey(id)
	if !ok {
		return ctx, cancel
	}
	f.mu.Lock()
	f.cancels[key] = cancel
	f.mu.Unlock()
	return ctx, func() {
		f.mu.Lock()
		delete(f.cancels, key)
		f.mu.Unlock()
		cancel()
	}
}

// cancel stops request id and reports whether it was still running.
func (f *inflight) cancel(id json.RawMessage) bool {
	key, ok := requestKey(id)
	if !ok {
		return false
	}
	f.mu.Lock()
	cancel, found := f.cancels[key]
	f.mu.Unlock()
	if found {
		cancel()
	}
	return found
}
