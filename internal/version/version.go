package version

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Version information for the vigil CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Colored renders Version with each numeric part in its own color. Color is
// dropped automatically when output is not a terminal.
func Colored() string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	out := versionMajorColor.Sprint(parts[0]) + "." + versionMinorColor.Sprint(parts[1]) + "." + versionPatchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}

// Banner writes the version line followed by optional build details.
func Banner(w io.Writer) {
	fmt.Fprintf(w, "vigil %s\n", Colored())
	if GitCommit != "" {
		fmt.Fprintf(w, "commit: %s\n", GitCommit)
	}
	if BuildDate != "" {
		fmt.Fprintf(w, "built:  %s\n", BuildDate)
	}
}
