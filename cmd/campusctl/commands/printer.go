package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func disableColor() {
	color.NoColor = true
}

func printSuccess(w io.Writer, format string, a ...interface{}) {
	green.Fprintf(w, "✓ "+format+"\n", a...)
}

func printWarning(w io.Writer, format string, a ...interface{}) {
	yellow.Fprintf(w, "! "+format+"\n", a...)
}

func printError(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
}

// printField prints an aligned "label: value" line.
func printField(w io.Writer, label string, value interface{}) {
	cyan.Fprintf(w, "  %-12s", label+":")
	fmt.Fprintf(w, " %v\n", value)
}

func printNote(w io.Writer, format string, a ...interface{}) {
	faint.Fprintf(w, format+"\n", a...)
}
