package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/engine"
	"vigil/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) messages(t *testing.T) []rpcMessage {
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	var out []rpcMessage
	for {
		payload, err := readFrame(r)
		if err != nil {
			return out
		}
		var msg rpcMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		out = append(out, msg)
	}
}

type client struct {
	t   *testing.T
	w   io.Writer
	out *syncBuffer
}

func (c *client) send(id int, method string, params any) {
	c.t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id > 0 {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	payload, err := json.Marshal(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, writeFrame(c.w, payload))
}

// response waits for the reply to id.
func (c *client) response(id int) rpcMessage {
	c.t.Helper()
	want := json.RawMessage(strings.TrimSpace(string(mustJSON(c.t, id))))
	var found rpcMessage
	require.Eventually(c.t, func() bool {
		for _, m := range c.out.messages(c.t) {
			if m.Method == "" && bytes.Equal(m.ID, want) {
				found = m
				return true
			}
		}
		return false
	}, 20*time.Second, 10*time.Millisecond)
	return found
}

// published returns the latest diagnostics published for uri.
func (c *client) published(uri string) ([]lspDiagnostic, bool) {
	var (
		last []lspDiagnostic
		seen bool
	)
	for _, m := range c.out.messages(c.t) {
		if m.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var p publishDiagnosticsParams
		require.NoError(c.t, json.Unmarshal(m.Params, &p))
		if p.URI == uri {
			last, seen = p.Diagnostics, true
		}
	}
	return last, seen
}

func mustJSON(t *testing.T, v any) []byte {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func hasCode(list []lspDiagnostic, code string) bool {
	for _, d := range list {
		if d.Code == code {
			return true
		}
	}
	return false
}

func startServer(t *testing.T, files map[string]string) (*client, string, <-chan error) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	log, _ := test.NewNullLogger()
	open := func(ctx context.Context, dir string) (*session.Session, error) {
		return session.Open(ctx, session.Options{
			Dir:                  dir,
			AllowMissingManifest: true,
			Engine: func(cfg *engine.Config) {
				cfg.Interval = 0
				cfg.StartupPoll = time.Millisecond
			},
			Log:        log,
			Registerer: prometheus.NewRegistry(),
		})
	}
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	server := NewServer(pr, out, ServerOptions{Open: open, Log: log})
	done := make(chan error, 1)
	go func() { done <- server.Run(context.Background()) }()
	t.Cleanup(func() { pw.Close() })
	return &client{t: t, w: pw, out: out}, root, done
}

const appManifest = "[[project]]\nname = \"app\"\ndir = \"app\"\nimport_path = \"example.com/app\"\n"

func TestServerPublishesAndFixes(t *testing.T) {
	clean := "// Package app is a sample.\npackage app\n"
	c, root, done := startServer(t, map[string]string{
		"vigil.toml": appManifest,
		"app/app.go": clean,
	})
	c.send(1, "initialize", initializeParams{RootURI: fileURI(root)})
	initResp := c.response(1)
	require.Nil(t, initResp.Error)
	c.send(0, "initialized", map[string]any{})

	uri := fileURI(filepath.Join(root, "app", "app.go"))
	c.send(0, "textDocument/didOpen", didOpenTextDocumentParams{TextDocument: textDocumentItem{
		URI: uri, Version: 1, Text: clean + "\nimport \"fmt\"\n",
	}})
	require.Eventually(t, func() bool {
		list, _ := c.published(uri)
		return hasCode(list, "SEM3019")
	}, 20*time.Second, 10*time.Millisecond)

	list, _ := c.published(uri)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Range.Start.Line)
	assert.Equal(t, 1, list[0].Severity)

	c.send(2, methodCodeCheck, codeCheckParams{URI: uri})
	var check codeCheckResult
	require.NoError(t, json.Unmarshal(c.response(2).Result, &check))
	require.Len(t, check.QuickFixes, 1)
	assert.Equal(t, "SEM3019", check.QuickFixes[0].Code)
	assert.Equal(t, "app", check.QuickFixes[0].Project)

	c.send(3, methodGetFixAll, fixAllParams{URI: uri, Scope: "document"})
	var summary getFixAllResult
	require.NoError(t, json.Unmarshal(c.response(3).Result, &summary))
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "SEM3019", summary.Items[0].ID)

	c.send(4, methodRunFixAll, fixAllParams{URI: uri, Scope: "project", Apply: true})
	var run runFixAllResult
	require.NoError(t, json.Unmarshal(c.response(4).Result, &run))
	require.Len(t, run.Changes, 1)
	assert.NotContains(t, run.Changes[0].NewText, "fmt")
	assert.True(t, run.Written)

	// the fix is analyzed again and the file's diagnostics are cleared
	require.Eventually(t, func() bool {
		list, seen := c.published(uri)
		return seen && len(list) == 0
	}, 20*time.Second, 10*time.Millisecond)

	c.send(5, methodReAnalyze, reAnalyzeParams{})
	var re reAnalyzeResult
	require.NoError(t, json.Unmarshal(c.response(5).Result, &re))
	assert.Len(t, re.Queued, 1)

	c.send(6, "shutdown", nil)
	c.response(6)
	c.send(0, "exit", nil)
	err := <-done
	assert.True(t, errors.Is(err, ErrExit), "got %v", err)

	var analyzed int
	for _, m := range c.out.messages(t) {
		if m.Method == notifyProjectAnalyzed {
			analyzed++
		}
	}
	assert.Positive(t, analyzed)
}

func TestServerLooseFiles(t *testing.T) {
	c, root, done := startServer(t, nil)
	c.send(1, "initialize", initializeParams{RootURI: fileURI(root)})
	c.response(1)

	uri := fileURI(filepath.Join(root, "script.py"))
	c.send(0, "textDocument/didOpen", didOpenTextDocumentParams{TextDocument: textDocumentItem{
		URI: uri, Version: 1, Text: "def broken(:\n    pass\n",
	}})
	require.Eventually(t, func() bool {
		list, _ := c.published(uri)
		return len(list) > 0
	}, 20*time.Second, 10*time.Millisecond)

	c.send(0, "textDocument/didClose", didCloseTextDocumentParams{TextDocument: textDocumentIdentifier{URI: uri}})
	require.Eventually(t, func() bool {
		list, seen := c.published(uri)
		return seen && len(list) == 0
	}, 20*time.Second, 10*time.Millisecond)

	c.send(0, "exit", nil)
	assert.ErrorIs(t, <-done, ErrExitWithoutShutdown)
}

func TestUnknownRequest(t *testing.T) {
	c, _, done := startServer(t, nil)
	c.send(7, "textDocument/hover", map[string]any{})
	resp := c.response(7)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	c.send(0, "exit", nil)
	<-done
}

func TestMalformedPayloadGetsParseError(t *testing.T) {
	c, _, done := startServer(t, nil)
	_, err := io.WriteString(c.w, "Content-Length: 9\r\n\r\n{not json")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, m := range c.out.messages(t) {
			if m.Error != nil && m.Error.Code == codeParseError {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	// the stream stays usable
	c.send(2, "textDocument/hover", map[string]any{})
	assert.Equal(t, codeMethodNotFound, c.response(2).Error.Code)
	c.send(0, "exit", nil)
	<-done
}

func TestCancelUnknownRequestIsIgnored(t *testing.T) {
	c, _, done := startServer(t, nil)
	c.send(0, "$/cancelRequest", cancelParams{ID: json.RawMessage("42")})
	c.send(3, "textDocument/hover", map[string]any{})
	assert.Equal(t, codeMethodNotFound, c.response(3).Error.Code)
	for _, m := range c.out.messages(t) {
		assert.NotEqual(t, json.RawMessage("42"), m.ID)
	}
	c.send(0, "exit", nil)
	<-done
}

func TestSendFailureMapsCancellation(t *testing.T) {
	out := &syncBuffer{}
	s := NewServer(strings.NewReader(""), out, ServerOptions{})
	require.NoError(t, s.sendFailure(json.RawMessage("1"), context.Canceled))
	require.NoError(t, s.sendFailure(json.RawMessage("2"), errors.New("disk full")))

	msgs := out.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, codeRequestCancelled, msgs[0].Error.Code)
	assert.Equal(t, codeInternalError, msgs[1].Error.Code)
	assert.Equal(t, "disk full", msgs[1].Error.Message)
}

// stalledWriter blocks every write until released.
type stalledWriter struct{ release chan struct{} }

func (w stalledWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestEngineCallbacksDoNotBlockOnSlowClient(t *testing.T) {
	w := stalledWriter{release: make(chan struct{})}
	defer close(w.release)
	log, hook := test.NewNullLogger()
	s := NewServer(strings.NewReader(""), w, ServerOptions{Log: log})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.drainOutbox(ctx)

	msg := engine.DiagnosticMessage{ProjectName: "app"}
	ev := engine.ProgressEvent{Name: "app", Status: engine.StatusAnalyzed}
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for range 2 * outboxSize {
			s.onDiagnostics(msg)
			s.onProgress(ev)
		}
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("engine callbacks blocked on a client that does not read")
	}

	var dropped int
	for _, e := range hook.AllEntries() {
		if e.Message == "lsp: client is slow, dropping diagnostics update" {
			dropped++
		}
	}
	assert.Positive(t, dropped)
}

func TestOutboxKeepsOrder(t *testing.T) {
	out := &syncBuffer{}
	s := NewServer(strings.NewReader(""), out, ServerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.drainOutbox(ctx)

	s.onProgress(engine.ProgressEvent{Name: "queued", Status: engine.StatusQueued})
	for _, name := range []string{"a", "b", "c"} {
		s.onProgress(engine.ProgressEvent{Name: name, Status: engine.StatusAnalyzed})
	}
	s.onProgress(engine.ProgressEvent{Name: "d", Status: engine.StatusFailed, Err: errors.New("boom")})

	var names []string
	require.Eventually(t, func() bool {
		names = names[:0]
		for _, m := range out.messages(t) {
			var p projectAnalyzedParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			names = append(names, p.Name)
		}
		return len(names) == 4
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
}
