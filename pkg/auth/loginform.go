package auth

import (
	"html"
	"io"
)

const (
	hideNativeErrors = "<style>.error{display:none;}</style>\n"
	openMask         = "\n<!--\n"
	closeMask        = "\n-->\n"
)

// RenderLoginTop implements Delegate. It hides the native error styling,
// prints the configured message and opens an HTML comment around the
// native form. It writes nothing when delegation is unconfigured.
func (g *Gate) RenderLoginTop(w io.Writer) error {
	cfg, ok := g.loadConfig()
	if !ok {
		return nil
	}

	_, err := io.WriteString(w, hideNativeErrors+
		`<p class="error" style="display:inline !important;">`+
		html.EscapeString(cfg.ErrorMessage)+
		"</p>"+openMask)
	return err
}

// RenderLoginEnd implements Delegate
func (g *Gate) RenderLoginEnd(w io.Writer) error {
	if _, ok := g.loadConfig(); !ok {
		return nil
	}
	_, err := io.WriteString(w, closeMask)
	return err
}
