// Package render formats assistant replies for the terminal with glamour.
package render

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/diogo/checkin/internal/config"
	"github.com/diogo/checkin/internal/models"
)

// Options configures the markdown renderer
type Options struct {
	Width            int
	Style            string // glamour style name ("dark", "light", "notty", ...) or path to a JSON theme
	EnableEmoji      bool
	PreserveNewLines bool
}

// DefaultOptions returns the default configuration
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
	}
}

// FromConfig builds Options from the markdown section of the config.
// GLAMOUR_STYLE overrides the configured style.
func FromConfig(md config.MarkdownConfig, width int) Options {
	opts := DefaultOptions()
	if md.Style != "" {
		opts.Style = md.Style
	}
	opts.EnableEmoji = md.EnableEmoji
	opts.PreserveNewLines = md.PreserveNewLines
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		opts.Style = style
	}
	if width > 0 {
		opts.Width = width
	}
	return opts
}

// glamour.TermRenderer is not safe for concurrent Render calls, so renderers
// are pooled per option set rather than shared
var (
	poolsMu sync.Mutex
	pools   = make(map[Options]*sync.Pool)
)

func pool(opts Options) *sync.Pool {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	if p, ok := pools[opts]; ok {
		return p
	}
	p := &sync.Pool{}
	pools[opts] = p
	return p
}

func newRenderer(opts Options) (*glamour.TermRenderer, error) {
	rendererOpts := []glamour.TermRendererOption{
		glamour.WithStylePath(opts.Style),
		glamour.WithWordWrap(opts.Width),
	}
	if opts.EnableEmoji {
		rendererOpts = append(rendererOpts, glamour.WithEmoji())
	}
	if opts.PreserveNewLines {
		rendererOpts = append(rendererOpts, glamour.WithPreservedNewLines())
	}
	return glamour.NewTermRenderer(rendererOpts...)
}

// Markdown renders content for terminal display
func Markdown(content string, opts Options) (string, error) {
	p := pool(opts)
	r, _ := p.Get().(*glamour.TermRenderer)
	if r == nil {
		var err error
		if r, err = newRenderer(opts); err != nil {
			return "", fmt.Errorf("create renderer: %w", err)
		}
	}
	defer p.Put(r)

	return r.Render(content)
}

// Reply renders an assistant message. Rendering failures fall back to the
// plain text.
func Reply(msg models.Message, opts Options) string {
	out, err := Markdown(msg.Text, opts)
	if err != nil {
		return msg.Text
	}
	return strings.TrimRight(out, "\n")
}

// MoodLine describes a mood score, e.g. "mood 0.42 (okay)"
func MoodLine(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("mood %.2f (%s)", *score, models.MoodLabel(*score))
}

// ClearCache drops pooled renderers
func ClearCache() {
	poolsMu.Lock()
	pools = make(map[Options]*sync.Pool)
	poolsMu.Unlock()
}
