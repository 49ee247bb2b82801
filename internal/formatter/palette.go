package formatter

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/audiocache/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Styles returns the default terminal palette.
func Styles() *Palette { return styles }

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Summary renders a one-line outcome for res: green when playable, amber when empty, red on failure.
func (p *Palette) Summary(res models.LoadResult) string {
	switch {
	case res.HasError():
		msg := "load failed"
		if res.Exception != nil && res.Exception.Message != "" {
			msg += ": " + res.Exception.Message
		}
		return p.Err("✗ " + msg)
	case len(res.Tracks) == 0:
		return p.Warn(fmt.Sprintf("- no tracks (%s)", res.LoadType))
	case len(res.Tracks) == 1:
		return p.OK(fmt.Sprintf("✓ 1 track (%s)", res.LoadType))
	default:
		return p.OK(fmt.Sprintf("✓ %d tracks (%s)", len(res.Tracks), res.LoadType))
	}
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
