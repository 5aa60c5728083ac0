package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"nica/internal/pipeline"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// eventPrinter writes pipeline events to the terminal, either as text lines
// or as one JSON object per line.
type eventPrinter struct {
	out      io.Writer
	colorize bool
	json     bool
	enc      *json.Encoder
}

func newEventPrinter(out io.Writer, asJSON bool) *eventPrinter {
	return &eventPrinter{
		out:      out,
		colorize: !asJSON && shouldColorize(out),
		json:     asJSON,
		enc:      json.NewEncoder(out),
	}
}

func (p *eventPrinter) Emit(e pipeline.Event) {
	if p.json {
		_ = p.enc.Encode(e)
		return
	}
	if line := renderEvent(e, p.colorize); line != "" {
		fmt.Fprintln(p.out, line)
	}
}

func renderEvent(e pipeline.Event, colorize bool) string {
	var prefix, color string
	switch e.Kind {
	case pipeline.EventStatus:
		prefix, color = "==>", ansiBlue
		if e.Message == pipeline.StatusFinished || e.Message == pipeline.StatusGrandAverageFinished {
			color = ansiGreen
		}
	case pipeline.EventOutput:
		prefix = "   "
	case pipeline.EventWarning:
		prefix, color = "[WARN]", ansiYellow
	case pipeline.EventError:
		prefix, color = "[ERROR]", ansiRed
	default:
		return ""
	}
	line := prefix + " " + strings.TrimRight(e.Message, "\n")
	if colorize && color != "" {
		return color + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
