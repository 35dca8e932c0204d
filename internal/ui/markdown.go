package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
)

// FormatMarkdown renders md for the terminal. Plain mode skips styling.
func FormatMarkdown(md string, plain bool) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if plain {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}

func RenderMarkdown(md string) {
	out, err := FormatMarkdown(md, false)
	if err != nil {
		// Fallback: print raw
		fmt.Fprintln(os.Stdout, md)
		return
	}
	fmt.Fprint(os.Stdout, out)
}
