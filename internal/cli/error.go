package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
)

// usageErrorPrefixes are the cobra/pflag error messages that indicate the
// user got the invocation wrong, as opposed to a scan or policy failure.
// Cobra offers no typed error for these; prefix matching is the workaround.
// See: https://github.com/spf13/cobra/pull/2266
var usageErrorPrefixes = []string{
	"flag needs an argument:",
	"unknown flag:",
	"unknown shorthand flag:",
	"unknown command",
	"invalid argument",
}

// ErrorHandler renders CLI errors through fang's styles, appending a --help
// hint when the error looks like a usage mistake.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	mustN(fmt.Fprintln(w))

	if !isUsageError(err) {
		return
	}

	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		styles.ErrorText.UnsetWidth().Render("Try"),
		styles.Program.Flag.Render("--help"),
		styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
	)))
	mustN(fmt.Fprintln(w))
}

func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range usageErrorPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
