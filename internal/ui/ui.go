// Package ui renders CLI output. Colors are used only when stdout is a
// terminal and NO_COLOR is unset; otherwise every helper returns plain text.
package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ErrNotInteractive is returned by Confirm when no terminal is attached.
var ErrNotInteractive = errors.New("not an interactive terminal (use --yes)")

// Palette
var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#8BC34A"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFC107"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E53935"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#2196F3"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

type styles struct {
	pass, warn, fail, accent, muted, header lipgloss.Style
}

var (
	renderer    = lipgloss.NewRenderer(os.Stdout)
	st          = newStyles(renderer)
	plain       = true
	interactive = false
)

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		pass:   r.NewStyle().Foreground(colorPass).Bold(true),
		warn:   r.NewStyle().Foreground(colorWarn).Bold(true),
		fail:   r.NewStyle().Foreground(colorFail).Bold(true),
		accent: r.NewStyle().Foreground(colorAccent),
		muted:  r.NewStyle().Foreground(colorMuted),
		header: r.NewStyle().Bold(true).Underline(true),
	}
}

// Init configures output for f, normally os.Stdout.
func Init(f *os.File) {
	isTTY := term.IsTerminal(int(f.Fd()))
	interactive = isTTY && term.IsTerminal(int(os.Stdin.Fd()))
	plain = !isTTY || termenv.EnvNoColor()

	renderer = lipgloss.NewRenderer(f)
	if plain {
		renderer.SetColorProfile(termenv.Ascii)
	}
	st = newStyles(renderer)
}

// IsPlain reports whether styling is disabled.
func IsPlain() bool { return plain }

func render(s lipgloss.Style, text string) string {
	if plain {
		return text
	}
	return s.Render(text)
}

func RenderPass(s string) string   { return render(st.pass, s) }
func RenderWarn(s string) string   { return render(st.warn, s) }
func RenderFail(s string) string   { return render(st.fail, s) }
func RenderAccent(s string) string { return render(st.accent, s) }
func RenderMuted(s string) string  { return render(st.muted, s) }

// Progress draws a bar of the given width for p in [0, 1].
func Progress(p float64, width int) string {
	p = min(max(p, 0), 1)
	filled := int(p*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %3.0f%%", render(st.accent, bar), p*100)
}

// Table lays rows out in left-aligned columns under a header row.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				cell = render(*style, cell)
			}
			parts[i] = cell + pad
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}

	line(headers, &st.header)
	for _, row := range rows {
		line(row, nil)
	}
	return b.String()
}

// Confirm asks a yes/no question. assumeYes skips the prompt.
func Confirm(title, description string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !interactive {
		return false, ErrNotInteractive
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
