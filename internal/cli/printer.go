package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer renders command output in either human or machine form. With
// --json every result is a single JSON document on stdout; --quiet
// suppresses the decorative lines.
type Printer struct {
	out   io.Writer
	json  bool
	quiet bool
}

func NewPrinter(out io.Writer, jsonMode, quiet bool) *Printer {
	return &Printer{out: out, json: jsonMode, quiet: quiet}
}

func (p *Printer) JSON() bool { return p.json }

// Result emits the command's primary output. In JSON mode the value is
// marshaled as-is; otherwise the human line is printed.
func (p *Printer) Result(value any, human string, args ...any) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	fmt.Fprintf(p.out, human+"\n", args...)
	return nil
}

func (p *Printer) Success(format string, args ...any) {
	if p.json || p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...any) {
	if p.json || p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Warn(format string, args ...any) {
	if p.json || p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

// StatusColor renders a video status in the conventional palette.
func StatusColor(status string) string {
	switch status {
	case "processed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "processing":
		return color.YellowString(status)
	default:
		return color.CyanString(status)
	}
}
