package version

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
)

func TestColoredWithoutTerminal(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	if got := Colored(); got != Version {
		t.Fatalf("Colored() = %q, want %q", got, Version)
	}
}

func TestBannerIncludesBuildInfo(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	origCommit, origDate := GitCommit, BuildDate
	defer func() {
		color.NoColor = prev
		GitCommit, BuildDate = origCommit, origDate
	}()

	GitCommit = "abc123"
	BuildDate = "2026-01-15T10:30:00Z"
	var buf bytes.Buffer
	Banner(&buf)
	want := "vigil " + Version + "\ncommit: abc123\nbuilt:  2026-01-15T10:30:00Z\n"
	if buf.String() != want {
		t.Fatalf("Banner() = %q, want %q", buf.String(), want)
	}
}

func TestColoredKeepsOddVersions(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "nightly"
	if got := Colored(); got != "nightly" {
		t.Fatalf("Colored() = %q", got)
	}
}
