package lsp

import "encoding/json"

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	RootURI          string            `json:"rootUri,omitempty"`
	RootPath         string            `json:"rootPath,omitempty"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type textDocumentContentChangeEvent struct {
	Range *lspRange `json:"range,omitempty"`
	Text  string    `json:"text"`
}

type didOpenTextDocumentParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeTextDocumentParams struct {
	TextDocument   versionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []textDocumentContentChangeEvent `json:"contentChanges"`
}

type didSaveTextDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type didCloseTextDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentSyncOptions struct {
	OpenClose bool        `json:"openClose"`
	Change    int         `json:"change"`
	Save      saveOptions `json:"save,omitempty"`
}

type saveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

type serverCapabilities struct {
	TextDocumentSync textDocumentSyncOptions `json:"textDocumentSync"`
	Experimental     experimentalCapability  `json:"experimental"`
}

// experimentalCapability advertises the vigil/* requests.
type experimentalCapability struct {
	Methods []string `json:"vigilMethods"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type cancelParams struct {
	ID json.RawMessage `json:"id"`
}

type publishDiagnosticsParams struct {
	URI         string          `json:"uri"`
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type lspDiagnostic struct {
	Range    lspRange `json:"range"`
	Severity int      `json:"severity,omitempty"`
	Code     string   `json:"code,omitempty"`
	Source   string   `json:"source,omitempty"`
	Message  string   `json:"message"`
}

type fileEvent struct {
	URI  string `json:"uri"`
	Type int    `json:"type"`
}

type didChangeWatchedFilesParams struct {
	Changes []fileEvent `json:"changes"`
}

type codeCheckParams struct {
	URI string `json:"uri,omitempty"`
}

type quickFix struct {
	URI      string   `json:"uri,omitempty"`
	Project  string   `json:"project"`
	Range    lspRange `json:"range"`
	Severity string   `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

type codeCheckResult struct {
	QuickFixes []quickFix `json:"quickFixes"`
}

type reAnalyzeParams struct {
	URI string `json:"uri,omitempty"`
}

type reAnalyzeResult struct {
	Queued []string `json:"queued"`
}

type fixAllParams struct {
	URI   string   `json:"uri,omitempty"`
	Scope string   `json:"scope,omitempty"`
	IDs   []string `json:"ids,omitempty"`
	Apply bool     `json:"apply,omitempty"`
}

type fixAllItem struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type getFixAllResult struct {
	Items []fixAllItem `json:"items"`
}

type documentChange struct {
	URI     string `json:"uri"`
	NewText string `json:"newText"`
	Edits   int    `json:"edits"`
}

type fixFailure struct {
	Provider string `json:"provider"`
	URI      string `json:"uri"`
	Message  string `json:"message"`
}

type runFixAllResult struct {
	Changes  []documentChange `json:"changes"`
	Applied  []string         `json:"applied"`
	Skipped  []string         `json:"skipped,omitempty"`
	Failures []fixFailure     `json:"failures,omitempty"`
	Written  bool             `json:"written"`
}

type projectAnalyzedParams struct {
	Project     string `json:"project"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Diagnostics int    `json:"diagnostics"`
	ElapsedMs   int64  `json:"elapsedMs"`
	Error       string `json:"error,omitempty"`
}
