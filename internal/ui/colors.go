package ui

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette(Theme{Title: "#7D56F4", OK: "#04B575", Err: "#FF0000", Warn: "#FFA500", Help: "#626262"})

// Theme names the hex colors a [Palette] is built from.
type Theme struct {
	Title, OK, Err, Warn, Help string
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t Theme) *Palette {
	return &Palette{
		title: NewBold(t.Title).MarginBottom(1),
		ok:    NewBold(t.OK),
		err:   NewBold(t.Err),
		warn:  NewStyle(t.Warn),
		help:  NewEm(t.Help),
	}
}

// badge marks whether a track has a stored signature.
func (p *Palette) badge(signed bool) string {
	if signed {
		return p.ok.Render("●")
	}
	return p.help.Render("○")
}

// distance renders d shaded by where it falls in [lo, hi]: the nearest third green, the farthest amber.
func (p *Palette) distance(d, lo, hi float64) string {
	if math.IsNaN(d) {
		return p.err.Render("NaN")
	}

	text := fmt.Sprintf("%.4f", d)
	span := hi - lo
	switch {
	case span <= 0 || d-lo <= span/3:
		return p.ok.Render(text)
	case d-lo >= 2*span/3:
		return p.warn.Render(text)
	}
	return text
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
