package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"vigil/internal/diag"
	"vigil/internal/source"
)

// Pretty форматирует диагностики в человекочитаемый вид.
// Для каждой диагностики печатает
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем строки контекста с подчёркиванием ^~~~ по Range.
// Диагностики проекта без файла печатаются как [project]: <SEV> <CODE>: <Message>.
func Pretty(w io.Writer, diags []diag.Diagnostic, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range diags {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if !d.HasPath() {
			fmt.Fprintf(w, "%s: %s %s: %s\n", p.location.Sprintf("[%s]", d.Project), p.severity(d.Severity), p.code.Sprint(d.ID), d.Message)
			continue
		}
		path := formatPath(d.Path, opts.PathMode, opts.BaseDir)
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			p.location.Sprintf("%s:%d:%d", path, d.Range.Start.Line, d.Range.Start.Col),
			p.severity(d.Severity), p.code.Sprint(d.ID), d.Message)
		if opts.Sources == nil {
			continue
		}
		if text := opts.Sources(d.Path); text != nil {
			writeContext(w, text, d, opts.Context, p)
		}
	}
}

// Summary prints the "N errors, M warnings" trailer. Nothing is printed
// for an empty list.
func Summary(w io.Writer, diags []diag.Diagnostic, useColor bool) {
	if len(diags) == 0 {
		return
	}
	var errs, warns, infos int
	for _, d := range diags {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		default:
			infos++
		}
	}
	p := newPalette(useColor)
	parts := []string{p.errorC.Sprint(plural(errs, "error"))}
	parts = append(parts, p.warnC.Sprint(plural(warns, "warning")))
	if infos > 0 {
		parts = append(parts, p.infoC.Sprint(plural(infos, "info")))
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func writeContext(w io.Writer, text *source.Text, d diag.Diagnostic, context int, p palette) {
	start := d.Range.Start.Line
	if start == 0 || int(start) > text.LineCount() {
		return
	}
	first := uint32(max(int(start)-context, 1))
	last := min(start+uint32(max(context, 0)), uint32(text.LineCount()))
	gutter := len(fmt.Sprint(last))

	for ln := first; ln <= last; ln++ {
		line := text.Line(ln)
		fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", gutter, ln), line)
		if ln != start {
			continue
		}
		pad, width := underline(line, d.Range)
		fmt.Fprintf(w, "%s %s%s\n", p.gutter.Sprintf("%*s |", gutter, ""), pad, p.marker(d.Severity).Sprint("^"+strings.Repeat("~", width-1)))
	}
}

// underline returns the indentation under line up to the start column and
// the display width of the marked text on that line, at least 1.
func underline(line string, rng source.Range) (string, int) {
	startCol := int(rng.Start.Col) - 1
	startCol = min(max(startCol, 0), len(line))
	endCol := len(line)
	if rng.End.Line == rng.Start.Line && int(rng.End.Col)-1 >= startCol {
		endCol = min(int(rng.End.Col)-1, len(line))
	}

	var pad strings.Builder
	for _, r := range line[:startCol] {
		if r == '\t' {
			pad.WriteByte('\t')
			continue
		}
		pad.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return pad.String(), max(runewidth.StringWidth(line[startCol:endCol]), 1)
}

type palette struct {
	location *color.Color
	code     *color.Color
	gutter   *color.Color
	errorC   *color.Color
	warnC    *color.Color
	infoC    *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		location: color.New(color.Bold),
		code:     color.New(color.FgCyan),
		gutter:   color.New(color.FgBlue),
		errorC:   color.New(color.FgRed, color.Bold),
		warnC:    color.New(color.FgYellow, color.Bold),
		infoC:    color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.location, p.code, p.gutter, p.errorC, p.warnC, p.infoC} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) marker(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.errorC
	case diag.SevWarning:
		return p.warnC
	}
	return p.infoC
}

func (p palette) severity(sev diag.Severity) string {
	return p.marker(sev).Sprint(sev.String())
}
