package lsp

import (
	"context"
	"encoding/json"
	"errors"

	"vigil/internal/engine"
	"vigil/internal/fix"
	"vigil/internal/fixall"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

const (
	methodCodeCheck       = "vigil/codeCheck"
	methodReAnalyze       = "vigil/reAnalyze"
	methodGetFixAll       = "vigil/getFixAll"
	methodRunFixAll       = "vigil/runFixAll"
	notifyProjectAnalyzed = "vigil/projectAnalyzed"
)

func (s *Server) handleCustom(ctx context.Context, msg *rpcMessage) error {
	sess, err := s.session()
	if err != nil {
		return s.sendError(msg.ID, codeNotInitialized, err.Error())
	}
	var result any
	switch msg.Method {
	case methodCodeCheck:
		var params codeCheckParams
		if err := decodeParams(msg, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
		snap := sess.Workspace.Snapshot()
		keys := snap.ProjectIDs()
		path := filePath(params.URI)
		if path != "" {
			p, ok := snap.ProjectForPath(path)
			if !ok {
				return s.sendResponse(msg.ID, codeCheckResult{QuickFixes: []quickFix{}})
			}
			keys = []workspace.ProjectID{p.ID}
		}
		diags, err := sess.Service.Diagnostics(ctx, keys)
		if err != nil {
			return s.sendFailure(msg.ID, err)
		}
		result = quickFixes(sess.Workspace.Snapshot(), diags, path)

	case methodReAnalyze:
		var params reAnalyzeParams
		if err := decodeParams(msg, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
		res := reAnalyzeResult{Queued: []string{}}
		if path := filePath(params.URI); path != "" {
			if id, ok := sess.Service.ReAnalyzePath(path); ok {
				res.Queued = append(res.Queued, id.String())
			}
		} else {
			for _, id := range sess.Service.ReAnalyze() {
				res.Queued = append(res.Queued, id.String())
			}
		}
		result = res

	case methodGetFixAll:
		var params fixAllParams
		scope, err := decodeScope(msg, &params)
		if err != nil {
			return s.sendError(msg.ID, codeInvalidParams, err.Error())
		}
		items, err := sess.FixAll.Summary(ctx, scope)
		if err != nil {
			return s.sendFailure(msg.ID, err)
		}
		res := getFixAllResult{Items: make([]fixAllItem, 0, len(items))}
		for _, it := range items {
			res.Items = append(res.Items, fixAllItem{ID: it.ID, Message: it.Message})
		}
		result = res

	case methodRunFixAll:
		var params fixAllParams
		scope, err := decodeScope(msg, &params)
		if err != nil {
			return s.sendError(msg.ID, codeInvalidParams, err.Error())
		}
		run, err := sess.FixAll.Run(ctx, fixall.RunRequest{Scope: scope, IDs: params.IDs, Apply: params.Apply})
		if err != nil && !errors.Is(err, fix.ErrNoFixes) {
			return s.sendFailure(msg.ID, err)
		}
		result = runResult(run)
	}
	return s.sendResponse(msg.ID, result)
}

// sendFailure answers a request whose work failed. Work stopped by
// $/cancelRequest or shutdown gets codeRequestCancelled.
func (s *Server) sendFailure(id json.RawMessage, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return s.sendError(id, codeRequestCancelled, "request cancelled")
	}
	return s.sendError(id, codeInternalError, err.Error())
}

func decodeParams(msg *rpcMessage, v any) error {
	if len(msg.Params) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Params, v)
}

func decodeScope(msg *rpcMessage, params *fixAllParams) (fixall.Scope, error) {
	if err := decodeParams(msg, params); err != nil {
		return fixall.Scope{}, err
	}
	kind, err := fixall.ParseScope(params.Scope)
	if err != nil {
		return fixall.Scope{}, err
	}
	return fixall.Scope{Kind: kind, Path: filePath(params.URI)}, nil
}

// quickFixes converts cached diagnostics; with path set only that file's
// diagnostics are kept.
func quickFixes(snap *workspace.Snapshot, diags []engine.ProjectDiagnostic, path string) codeCheckResult {
	res := codeCheckResult{QuickFixes: make([]quickFix, 0, len(diags))}
	for _, pd := range diags {
		d := pd.Diagnostic
		if path != "" && d.Path != path {
			continue
		}
		var text *source.Text
		uri := ""
		if d.HasPath() {
			uri = fileURI(d.Path)
			if _, doc, ok := snap.FindDocument(d.Path); ok {
				text = doc.Text
			}
		}
		res.QuickFixes = append(res.QuickFixes, quickFix{
			URI:      uri,
			Project:  pd.ProjectName,
			Range:    rangeFor(text, d.Range),
			Severity: d.Severity.Label(),
			Code:     d.ID,
			Message:  d.Message,
		})
	}
	return res
}

func runResult(run *fixall.RunResult) runFixAllResult {
	res := runFixAllResult{Changes: []documentChange{}, Applied: []string{}}
	if run == nil {
		return res
	}
	for _, ch := range run.Changes {
		res.Changes = append(res.Changes, documentChange{
			URI:     fileURI(ch.Path),
			NewText: string(ch.After),
			Edits:   ch.EditCount,
		})
	}
	for _, a := range run.Applied {
		res.Applied = append(res.Applied, a.Title)
	}
	for _, sk := range run.Skipped {
		res.Skipped = append(res.Skipped, sk.Title+": "+sk.Reason)
	}
	for _, f := range run.Failures {
		res.Failures = append(res.Failures, fixFailure{Provider: f.Provider, URI: fileURI(f.Path), Message: f.Err.Error()})
	}
	res.Written = run.Written
	return res
}
