package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"

	"vigil/internal/fix"
)

// DiffOpts configures the rendering of fix previews.
type DiffOpts struct {
	Color    bool
	Context  int // неизменённые строки вокруг правки
	PathMode PathMode
	BaseDir  string
}

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// Diff writes a line-based unified-style preview of every change:
// a "--- path" / "+++ path" header followed by hunks of removed (-),
// added (+) and context lines.
func Diff(w io.Writer, changes []fix.FileChange, opts DiffOpts) {
	del := color.New(color.FgRed)
	ins := color.New(color.FgGreen)
	hdr := color.New(color.Bold)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{del, ins, hdr, hunk} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, ch := range changes {
		path := formatPath(ch.Path, opts.PathMode, opts.BaseDir)
		fmt.Fprintln(w, hdr.Sprintf("--- %s", path))
		fmt.Fprintln(w, hdr.Sprintf("+++ %s", path))

		lines := diffLines(string(ch.Before), string(ch.After))
		for _, h := range hunks(lines, max(opts.Context, 0)) {
			fmt.Fprintln(w, hunk.Sprintf("@@ -%d,%d +%d,%d @@", h.oldStart, h.oldLen, h.newStart, h.newLen))
			for _, l := range lines[h.from:h.to] {
				switch l.op {
				case diffmatchpatch.DiffDelete:
					fmt.Fprintln(w, del.Sprint("-"+l.text))
				case diffmatchpatch.DiffInsert:
					fmt.Fprintln(w, ins.Sprint("+"+l.text))
				default:
					fmt.Fprintln(w, " "+l.text)
				}
			}
		}
	}
}

func diffLines(before, after string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out []diffLine
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, diffLine{op: d.Type, text: line})
		}
	}
	return out
}

type diffHunk struct {
	from, to         int
	oldStart, oldLen int
	newStart, newLen int
}

// hunks groups changed lines with up to context unchanged lines around
// them. Groups whose context would touch are merged.
func hunks(lines []diffLine, context int) []diffHunk {
	oldNo := make([]int, len(lines))
	newNo := make([]int, len(lines))
	oldLine, newLine := 1, 1
	for i, l := range lines {
		oldNo[i], newNo[i] = oldLine, newLine
		if l.op != diffmatchpatch.DiffInsert {
			oldLine++
		}
		if l.op != diffmatchpatch.DiffDelete {
			newLine++
		}
	}

	var out []diffHunk
	for i, l := range lines {
		if l.op == diffmatchpatch.DiffEqual {
			continue
		}
		from, to := max(i-context, 0), min(i+context+1, len(lines))
		if n := len(out); n > 0 && from <= out[n-1].to {
			out[n-1].to = max(out[n-1].to, to)
			continue
		}
		out = append(out, diffHunk{from: from, to: to})
	}

	for k := range out {
		h := &out[k]
		h.oldStart, h.newStart = oldNo[h.from], newNo[h.from]
		for _, l := range lines[h.from:h.to] {
			if l.op != diffmatchpatch.DiffInsert {
				h.oldLen++
			}
			if l.op != diffmatchpatch.DiffDelete {
				h.newLen++
			}
		}
	}
	return out
}
