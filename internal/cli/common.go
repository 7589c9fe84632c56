// Package cli carries the plumbing shared by the scribal command tree:
// version reporting, exit helpers and terminal-aware status colouring.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
)

// Version information, overridable at link time.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	CommitSHA = "unknown"
)

// VersionInfo is the structured form of the version report.
type VersionInfo struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	CommitSHA string `json:"commit_sha"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo collects the version report for one tool.
func GetVersionInfo(tool string) VersionInfo {
	return VersionInfo{
		Tool:      tool,
		Version:   Version,
		BuildDate: BuildDate,
		CommitSHA: CommitSHA,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// PrintVersion writes the version report, as JSON when asked.
func PrintVersion(w io.Writer, tool string, jsonOutput bool) error {
	info := GetVersionInfo(tool)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "%s v%s\n", info.Tool, info.Version)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Fprintf(w, "commit: %s\n", info.CommitSHA)
	}
	fmt.Fprintf(w, "go: %s (%s)\n", info.GoVersion, info.Platform)
	return nil
}

// ExitWithError prints an error message to stderr and exits with code 1.
func ExitWithError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// Palette decides whether status markers are coloured.
type Palette struct {
	enabled bool
}

// NewPalette resolves a color mode (auto, always, never) against the
// output stream: auto enables colour only when w is a terminal.
func NewPalette(mode string, w io.Writer) Palette {
	switch mode {
	case "always":
		return Palette{enabled: true}
	case "never":
		return Palette{enabled: false}
	default:
		f, ok := w.(*os.File)
		return Palette{enabled: ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))}
	}
}

// Pass renders a success marker.
func (p Palette) Pass(s string) string { return p.wrap("\033[32m", s) }

// Fail renders a failure marker.
func (p Palette) Fail(s string) string { return p.wrap("\033[31m", s) }

// Warn renders a warning marker.
func (p Palette) Warn(s string) string { return p.wrap("\033[33m", s) }

func (p Palette) wrap(code, s string) string {
	if !p.enabled {
		return s
	}
	return code + s + "\033[0m"
}
