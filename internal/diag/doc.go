// Package diag defines the diagnostic model shared by the analyzers, the
// background engine, the fix-all layer and every front end.
//
// # Purpose
//
//   - Provide a flat, serialisable record (Diagnostic) that survives caching,
//     persistence to disk and transport to clients without losing information.
//   - Offer light-weight utilities (Reporter, Bag) that let analyzers emit
//     diagnostics without coupling to concrete storage or formatting layers.
//   - Describe corrective edits (TextEdit) in a form that internal/fix can apply.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Project – display name of the project whose analysis produced it.
//   - Path – file the issue belongs to; empty for project-scoped diagnostics
//     (for example a project reference that cannot be resolved).
//   - Severity – tri-level enum (Info, Warning, Error) defined in severity.go.
//   - ID – stable textual identifier. Built-in analyzers derive it from Code
//     (see codes.go); external rule sets may use any string.
//   - Message – human oriented text; keep it short and actionable.
//   - Range – byte span plus resolved 1-based line/column bounds.
//
// A diagnostic is a value: once produced it is never mutated. The engine
// replaces a project's whole diagnostic set on every analysis, so there is no
// identity to track between runs.
//
// # Codes
//
// Code is a compact numeric identifier grouped by producer:
//
//	2000-2999  SYN  syntax errors (go/parser, tree-sitter)
//	3000-3999  SEM  type checking (go/types)
//	4000-4999  STY  style rules
//	5000-5999  PRJ  project configuration and references
//
// Code.ID() renders the stable string form ("SEM3001"). Fix providers and
// rule sets key on that string.
//
// # Ordering
//
// Bag.Sort orders diagnostics by path, start offset, end offset, severity
// (descending) and id, which gives deterministic output for CLI rendering and
// golden tests. Dedup drops entries with an identical id, path, span and
// message.
package diag
