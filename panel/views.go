package panel

import (
	"bytes"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/clippy/shield"
)

type pageData struct {
	SignedIn bool
	Email    string
	Enabled  bool
	DarkMode bool
	Flash    *shield.FlashMessage
}

type views struct {
	tmpl *template.Template
}

func newViews() *views {
	return &views{tmpl: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

// render buffers the page so a template error never sends half a page.
func (v *views) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("panel: render failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

var messagePolicy = bluemonday.NewPolicy().AllowElements("br")

var whitespace = strings.NewReplacer("\n", "<br>", " ", "&nbsp;")

// formatMessage renders chat text for display: escaped, newlines as line
// breaks and spaces kept, then sanitised so only <br> survives.
func formatMessage(text string) template.HTML {
	escaped := whitespace.Replace(html.EscapeString(text))
	return template.HTML(messagePolicy.Sanitize(escaped))
}
