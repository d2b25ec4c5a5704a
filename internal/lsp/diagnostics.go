package lsp

import (
	"context"
	"sort"

	"vigil/internal/engine"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

// outboxSize bounds the engine events waiting to be written to the client.
const outboxSize = 64

// outboxItem carries one engine callback to the writer goroutine. Exactly
// one field is set.
type outboxItem struct {
	msg      *engine.DiagnosticMessage
	progress *engine.ProgressEvent
}

// onDiagnostics runs on the engine's analysis goroutine and only queues
// the message; a client that stops reading never stalls analysis.
func (s *Server) onDiagnostics(msg engine.DiagnosticMessage) {
	s.enqueue(outboxItem{msg: &msg})
}

// onProgress queues settled projects. Other statuses are ignored.
func (s *Server) onProgress(ev engine.ProgressEvent) {
	if ev.Status != engine.StatusAnalyzed && ev.Status != engine.StatusFailed {
		return
	}
	s.enqueue(outboxItem{progress: &ev})
}

func (s *Server) enqueue(item outboxItem) {
	select {
	case s.outbox <- item:
	default:
		entry := s.log.WithField("pending", len(s.outbox))
		if item.msg != nil {
			entry = entry.WithField("project", item.msg.ProjectName)
		} else {
			entry = entry.WithField("project", item.progress.Name)
		}
		entry.Warn("lsp: client is slow, dropping diagnostics update")
	}
}

// drainOutbox writes queued engine events in arrival order until ctx is
// done. Diagnostics and progress share the queue so a project's files are
// published before its stale files are cleared.
func (s *Server) drainOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.outbox:
			if item.msg != nil {
				s.publish(*item.msg)
			} else {
				s.settled(*item.progress)
			}
		}
	}
}

// publish sends a forwarded message file by file.
func (s *Server) publish(msg engine.DiagnosticMessage) {
	sess, err := s.session()
	if err != nil {
		return
	}
	snap := sess.Workspace.Snapshot()
	uris := make(map[string]struct{}, len(msg.Files))
	for _, file := range msg.Files {
		var text *source.Text
		if _, doc, ok := snap.FindDocument(file.Path); ok {
			text = doc.Text
		}
		list := make([]lspDiagnostic, 0, len(file.Diagnostics))
		for _, d := range file.Diagnostics {
			if len(list) >= s.maxDiagnostics {
				break
			}
			list = append(list, toLSPDiagnostic(text, d))
		}
		uri := fileURI(file.Path)
		uris[uri] = struct{}{}
		if err := s.sendPublish(uri, list); err != nil {
			s.log.WithError(err).Warn("lsp: publish diagnostics")
		}
	}
	s.mu.Lock()
	s.pendingFiles[msg.Project] = uris
	s.mu.Unlock()
}

// settled clears files that lost all diagnostics once a project settles
// and tells the client about it.
func (s *Server) settled(ev engine.ProgressEvent) {
	if ev.Status == engine.StatusAnalyzed {
		for _, uri := range s.settle(ev.Project) {
			if err := s.sendPublish(uri, nil); err != nil {
				s.log.WithError(err).Warn("lsp: clear diagnostics")
			}
		}
	}
	params := projectAnalyzedParams{
		Project:     ev.Project.String(),
		Name:        ev.Name,
		Status:      string(ev.Status),
		Diagnostics: ev.Diagnostics,
		ElapsedMs:   ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		params.Error = ev.Err.Error()
	}
	if err := s.sendNotification(notifyProjectAnalyzed, params); err != nil {
		s.log.WithError(err).Warn("lsp: project analyzed notification")
	}
}

// settle swaps the files published during the latest analysis of project
// in as current and returns the previously published ones that are gone.
func (s *Server) settle(project workspace.ProjectID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.pendingFiles[project]
	delete(s.pendingFiles, project)
	var stale []string
	for uri := range s.lastFiles[project] {
		if _, ok := current[uri]; !ok {
			stale = append(stale, uri)
		}
	}
	sort.Strings(stale)
	if len(current) == 0 {
		delete(s.lastFiles, project)
	} else {
		s.lastFiles[project] = current
	}
	return stale
}

func (s *Server) forget(project workspace.ProjectID, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastFiles[project], uri)
	delete(s.pendingFiles[project], uri)
}
