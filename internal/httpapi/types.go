package httpapi

// FileRequest targets one file, or everything when File is empty.
type FileRequest struct {
	File string `json:"file"`
}

type QuickFix struct {
	File     string `json:"file,omitempty"`
	Project  string `json:"project"`
	Line     uint32 `json:"line"`
	Column   uint32 `json:"column"`
	EndLine  uint32 `json:"endLine"`
	EndCol   uint32 `json:"endColumn"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type CodeCheckResponse struct {
	QuickFixes []QuickFix `json:"quickFixes"`
}

type ReAnalyzeResponse struct {
	Queued []string `json:"queued"`
}

type FixAllRequest struct {
	File  string   `json:"file"`
	Scope string   `json:"scope" binding:"omitempty,oneof=document file project workspace solution"`
	IDs   []string `json:"ids"`
	Apply bool     `json:"apply"`
}

type FixAllItem struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type FixAllResponse struct {
	Items []FixAllItem `json:"items"`
}

type FileChange struct {
	File    string `json:"file"`
	NewText string `json:"newText"`
	Edits   int    `json:"edits"`
}

type RunFixAllResponse struct {
	Changes  []FileChange `json:"changes"`
	Applied  []string     `json:"applied"`
	Skipped  []string     `json:"skipped,omitempty"`
	Failures []string     `json:"failures,omitempty"`
	Written  bool         `json:"written"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Ready    bool   `json:"ready"`
	Running  bool   `json:"running"`
	Projects int    `json:"projects"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Event is one websocket frame on /v1/events.
type Event struct {
	Type        string      `json:"type"`
	Project     string      `json:"project"`
	Status      string      `json:"status,omitempty"`
	Diagnostics int         `json:"diagnostics,omitempty"`
	ElapsedMs   int64       `json:"elapsedMs,omitempty"`
	Files       []EventFile `json:"files,omitempty"`
}

type EventFile struct {
	File        string     `json:"file"`
	Diagnostics []QuickFix `json:"diagnostics"`
}
