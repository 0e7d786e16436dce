// Package ui holds the small amount of terminal styling used by the
// interactive capture prompt.
package ui

import "os"

// ANSI color and style constants for CLI output
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

// enabled honors the NO_COLOR convention.
var enabled = os.Getenv("NO_COLOR") == ""

func paint(color, s string) string {
	if !enabled {
		return s
	}
	return color + s + ColorReset
}

func Bold(s string) string { return paint(ColorBold, s) }

func Dim(s string) string { return paint(ColorDim, s) }

func Success(s string) string { return paint(ColorGreen, s) }

func Warn(s string) string { return paint(ColorYellow, s) }

func Error(s string) string { return paint(ColorRed, s) }

// Prompt styles the interactive field prompt.
func Prompt(s string) string { return paint(ColorCyan, s) }
