package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// formatter renders a kind of CLI text, falling back to plain decorations
// when colors are off.
type formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f formatter) Sprint(a ...any) string {
	text := fmt.Sprint(a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

func (f formatter) Sprintf(format string, a ...any) string {
	return f.Sprint(fmt.Sprintf(format, a...))
}

func noColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return color.NoColor
}

var (
	cmdText   = formatter{color.New(color.FgYellow), "`", "`"}
	success   = formatter{color.New(color.FgGreen), "", ""}
	failure   = formatter{color.New(color.FgRed), "", ""}
	highlight = formatter{color.New(color.FgCyan, color.Bold), "'", "'"}
	muted     = formatter{color.New(color.FgHiBlack), "(", ")"}
)
