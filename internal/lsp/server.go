package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"vigil/internal/engine"
	"vigil/internal/session"
	"vigil/internal/version"
	"vigil/internal/watch"
	"vigil/internal/workspace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
	errNotInitialized      = errors.New("server not initialized")
)

// OpenFunc opens the session for the workspace root chosen at initialize.
type OpenFunc func(ctx context.Context, root string) (*session.Session, error)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	Open OpenFunc
	// Log must not write to stdout; stdout carries the protocol.
	Log logrus.FieldLogger
	// MaxDiagnostics caps the diagnostics published per file.
	MaxDiagnostics int
}

// Server handles stdio JSON-RPC for the vigil language server.
type Server struct {
	conn     *conn
	requests *inflight
	outbox   chan outboxItem
	log      logrus.FieldLogger
	open     OpenFunc

	mu                sync.Mutex
	sess              *session.Session
	watcher           *watch.Watcher
	openDocs          map[string]string
	versions          map[string]int
	lastFiles         map[workspace.ProjectID]map[string]struct{}
	pendingFiles      map[workspace.ProjectID]map[string]struct{}
	shutdownRequested bool
	maxDiagnostics    int
	unsubscribe       []func()

	baseCtx context.Context
	cancel  context.CancelFunc
	async   sync.WaitGroup
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	maxDiagnostics := opts.MaxDiagnostics
	if maxDiagnostics <= 0 {
		maxDiagnostics = 100
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Server{
		conn:           newConn(in, out),
		requests:       newInflight(),
		outbox:         make(chan outboxItem, outboxSize),
		log:            log,
		open:           opts.Open,
		openDocs:       make(map[string]string),
		versions:       make(map[string]int),
		lastFiles:      make(map[workspace.ProjectID]map[string]struct{}),
		pendingFiles:   make(map[workspace.ProjectID]map[string]struct{}),
		maxDiagnostics: maxDiagnostics,
		baseCtx:        context.Background(),
	}
}

// Run serves LSP requests until exit or EOF. The session is closed on
// return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = ctx
	s.cancel = cancel
	s.mu.Unlock()
	defer s.close()

	s.async.Add(1)
	go func() {
		defer s.async.Done()
		s.drainOutbox(ctx)
	}()

	for {
		msg, err := s.conn.read()
		var rerr *rpcError
		switch {
		case errors.As(err, &rerr):
			s.log.WithError(err).Warn("lsp: rejected message")
			if err := s.reject(msg, rerr); err != nil {
				return err
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(msg); err != nil {
			return err
		}
	}
}

// reject answers a message that could not be dispatched. Unparseable
// payloads are answered with a null id; notifications get no answer.
func (s *Server) reject(msg *rpcMessage, rerr *rpcError) error {
	id := json.RawMessage("null")
	if msg != nil {
		if len(msg.ID) == 0 {
			return nil
		}
		id = msg.ID
	}
	return s.sendError(id, rerr.Code, rerr.Message)
}

func (s *Server) close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.async.Wait()

	s.mu.Lock()
	sess := s.sess
	unsubscribe := s.unsubscribe
	s.sess = nil
	s.unsubscribe = nil
	s.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			s.log.WithError(err).Warn("lsp: closing session")
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if s.shutdownRequested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "workspace/didChangeWatchedFiles":
		return s.handleDidChangeWatchedFiles(msg)
	case "$/cancelRequest":
		var params cancelParams
		if err := json.Unmarshal(msg.Params, &params); err == nil && s.requests.cancel(params.ID) {
			s.log.WithField("id", string(params.ID)).Debug("lsp: request cancelled")
		}
		return nil
	case methodCodeCheck, methodReAnalyze, methodGetFixAll, methodRunFixAll:
		// These wait on analysis; the read loop must keep draining edits.
		ctx, done := s.requests.begin(s.baseCtx, msg.ID)
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			defer done()
			if err := s.handleCustom(ctx, msg); err != nil {
				s.log.WithError(err).WithField("method", msg.Method).Warn("lsp: request failed")
			}
		}()
		return nil
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = filePath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = filePath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	root = detectRoot(root)

	if s.open == nil {
		return s.sendError(msg.ID, codeInternalError, "no session opener configured")
	}
	sess, err := s.open(s.baseCtx, root)
	if err != nil {
		s.log.WithError(err).WithField("root", root).Error("lsp: opening workspace")
		return s.sendError(msg.ID, codeInternalError, err.Error())
	}
	s.attach(sess)

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: true,
				},
			},
			Experimental: experimentalCapability{
				Methods: []string{methodCodeCheck, methodReAnalyze, methodGetFixAll, methodRunFixAll},
			},
		},
		ServerInfo: serverInfo{Name: "vigil", Version: version.Version},
	}
	return s.sendResponse(msg.ID, result)
}

// attach subscribes to the session's engine and starts it.
func (s *Server) attach(sess *session.Session) {
	unsubMsgs := sess.Service.Subscribe(s.onDiagnostics)
	unsubProgress := sess.Service.SubscribeProgress(engine.ProgressFunc(s.onProgress))
	s.mu.Lock()
	s.sess = sess
	s.watcher = watch.New(sess.Workspace, sess.Root, watch.WithLogger(s.log))
	s.unsubscribe = append(s.unsubscribe, unsubMsgs, unsubProgress)
	ctx := s.baseCtx
	s.mu.Unlock()
	sess.Start(ctx)
}

func (s *Server) session() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, errNotInitialized
	}
	return s.sess, nil
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := documentKey(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = params.TextDocument.Text
	s.versions[uri] = params.TextDocument.Version
	s.mu.Unlock()
	return s.store(uri, params.TextDocument.Text)
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := documentKey(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	text := applyChanges(s.openDocs[uri], params.ContentChanges)
	s.openDocs[uri] = text
	s.versions[uri] = params.TextDocument.Version
	s.mu.Unlock()
	return s.store(uri, text)
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := documentKey(params.TextDocument.URI)
	if uri == "" || params.Text == nil {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = *params.Text
	s.mu.Unlock()
	return s.store(uri, *params.Text)
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := documentKey(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.openDocs, uri)
	delete(s.versions, uri)
	w := s.watcher
	s.mu.Unlock()

	sess, err := s.session()
	if err != nil {
		return nil
	}
	path := filePath(uri)
	owner, _, found := sess.Workspace.Snapshot().FindDocument(path)
	if found && owner.IsLoose() {
		if err := sess.Workspace.CloseDocument(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("lsp: close document")
		}
		s.forget(owner.ID, uri)
		return s.sendPublish(uri, nil)
	}
	// Unsaved edits are dropped; the disk content becomes current again.
	if w != nil {
		w.Apply([]string{path})
	}
	return nil
}

func (s *Server) handleDidChangeWatchedFiles(msg *rpcMessage) error {
	var params didChangeWatchedFilesParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	s.mu.Lock()
	w := s.watcher
	var paths []string
	for _, ch := range params.Changes {
		uri := documentKey(ch.URI)
		if _, open := s.openDocs[uri]; open {
			continue
		}
		if p := filePath(uri); p != "" {
			paths = append(paths, p)
		}
	}
	s.mu.Unlock()
	if w != nil && len(paths) > 0 {
		w.Apply(paths)
	}
	return nil
}

// store pushes editor content into the workspace. The engine picks the
// change up through its change listener.
func (s *Server) store(uri, text string) error {
	sess, err := s.session()
	if err != nil {
		return nil
	}
	path := filePath(uri)
	if path == "" {
		return nil
	}
	if _, err := sess.Workspace.OpenDocument(path, []byte(text)); err != nil {
		s.log.WithError(err).WithField("path", path).Warn("lsp: store document")
	}
	return nil
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendNotification(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	return s.sendNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         uri,
		Diagnostics: list,
	})
}

func (s *Server) send(msg any) error {
	return s.conn.write(msg)
}
