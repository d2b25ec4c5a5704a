// Package httpapi exposes a session over HTTP: diagnostics queries,
// re-analysis, fix-all, a websocket stream of forwarded diagnostics and the
// Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"vigil/internal/diag"
	"vigil/internal/engine"
	"vigil/internal/fix"
	"vigil/internal/fixall"
	"vigil/internal/session"
	"vigil/internal/version"
	"vigil/internal/workspace"
)

type Option func(*Server)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGatherer selects the registry served at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

type Server struct {
	sess     *session.Session
	log      logrus.FieldLogger
	gatherer prometheus.Gatherer
	hub      *hub
	router   *gin.Engine
}

func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		sess:     sess,
		log:      logrus.StandardLogger(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.hub = newHub(s.log)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/codecheck", s.handleCodeCheck)
	v1.POST("/reanalyze", s.handleReAnalyze)
	v1.POST("/fixall", s.handleFixAll)
	v1.POST("/fixall/run", s.handleRunFixAll)
	v1.GET("/events", s.handleEvents)
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. The engine subscriptions live as long as the call.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	unsubscribe := s.Attach()
	defer unsubscribe()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Attach feeds engine output into the /v1/events clients until the returned
// function is called. ListenAndServe attaches by itself.
func (s *Server) Attach() func() {
	unsubMsgs := s.sess.Service.Subscribe(func(msg engine.DiagnosticMessage) {
		s.hub.broadcast(diagnosticsEvent(msg))
	})
	unsubProgress := s.sess.Service.SubscribeProgress(engine.ProgressFunc(func(ev engine.ProgressEvent) {
		if ev.Status == engine.StatusAnalyzed || ev.Status == engine.StatusFailed {
			s.hub.broadcast(progressEvent(ev))
		}
	}))
	return func() {
		unsubMsgs()
		unsubProgress()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("http: request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Ready:    s.sess.Workspace.Ready(),
		Running:  s.sess.Service.Running(),
		Projects: s.sess.Workspace.Snapshot().Len(),
	})
}

func (s *Server) handleCodeCheck(c *gin.Context) {
	var req FileRequest
	if !bindOptional(c, &req) {
		return
	}
	snap := s.sess.Workspace.Snapshot()
	keys := snap.ProjectIDs()
	if req.File != "" {
		p, ok := snap.ProjectForPath(req.File)
		if !ok {
			c.JSON(http.StatusOK, CodeCheckResponse{QuickFixes: []QuickFix{}})
			return
		}
		keys = []workspace.ProjectID{p.ID}
	}
	diags, err := s.sess.Service.Diagnostics(c.Request.Context(), keys)
	if err != nil {
		abort(c, http.StatusServiceUnavailable, err)
		return
	}
	out := CodeCheckResponse{QuickFixes: make([]QuickFix, 0, len(diags))}
	for _, pd := range diags {
		if req.File != "" && pd.Diagnostic.Path != filepath.Clean(req.File) {
			continue
		}
		out.QuickFixes = append(out.QuickFixes, quickFix(pd.ProjectName, pd.Diagnostic))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleReAnalyze(c *gin.Context) {
	var req FileRequest
	if !bindOptional(c, &req) {
		return
	}
	out := ReAnalyzeResponse{Queued: []string{}}
	if req.File != "" {
		id, ok := s.sess.Service.ReAnalyzePath(req.File)
		if !ok {
			abort(c, http.StatusNotFound, fmt.Errorf("%s: not part of any project", req.File))
			return
		}
		out.Queued = append(out.Queued, id.String())
	} else {
		for _, id := range s.sess.Service.ReAnalyze() {
			out.Queued = append(out.Queued, id.String())
		}
	}
	c.JSON(http.StatusAccepted, out)
}

func (s *Server) handleFixAll(c *gin.Context) {
	var req FixAllRequest
	scope, ok := bindScope(c, &req)
	if !ok {
		return
	}
	items, err := s.sess.FixAll.Summary(c.Request.Context(), scope)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	out := FixAllResponse{Items: make([]FixAllItem, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, FixAllItem{ID: it.ID, Message: it.Message})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRunFixAll(c *gin.Context) {
	var req FixAllRequest
	scope, ok := bindScope(c, &req)
	if !ok {
		return
	}
	run, err := s.sess.FixAll.Run(c.Request.Context(), fixall.RunRequest{Scope: scope, IDs: req.IDs, Apply: req.Apply})
	if err != nil && !errors.Is(err, fix.ErrNoFixes) {
		abort(c, statusFor(err), err)
		return
	}
	out := RunFixAllResponse{Changes: []FileChange{}, Applied: []string{}}
	if run != nil {
		for _, ch := range run.Changes {
			out.Changes = append(out.Changes, FileChange{File: ch.Path, NewText: string(ch.After), Edits: ch.EditCount})
		}
		for _, a := range run.Applied {
			out.Applied = append(out.Applied, a.Title)
		}
		for _, sk := range run.Skipped {
			out.Skipped = append(out.Skipped, sk.Title+": "+sk.Reason)
		}
		for _, f := range run.Failures {
			out.Failures = append(out.Failures, f.Provider+": "+f.Path+": "+f.Err.Error())
		}
		out.Written = run.Written
	}
	c.JSON(http.StatusOK, out)
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, http.StatusBadRequest, err)
		return false
	}
	return true
}

func bindScope(c *gin.Context, req *FixAllRequest) (fixall.Scope, bool) {
	if !bindOptional(c, req) {
		return fixall.Scope{}, false
	}
	kind, err := fixall.ParseScope(req.Scope)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return fixall.Scope{}, false
	}
	return fixall.Scope{Kind: kind, Path: req.File}, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fixall.ErrNoPath):
		return http.StatusBadRequest
	case errors.Is(err, fixall.ErrDocumentUnknown):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func quickFix(project string, d diag.Diagnostic) QuickFix {
	return QuickFix{
		File:     d.Path,
		Project:  project,
		Line:     d.Range.Start.Line,
		Column:   d.Range.Start.Col,
		EndLine:  d.Range.End.Line,
		EndCol:   d.Range.End.Col,
		Severity: d.Severity.Label(),
		Code:     d.ID,
		Message:  d.Message,
	}
}
