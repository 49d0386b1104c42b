package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles colour terminal output. Color profiles are detected per writer, so
// pipes and buffers get plain text.
type styles struct {
	ok     lipgloss.Style
	failed lipgloss.Style
	name   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		failed: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		name:   r.NewStyle().Bold(true),
	}
}
