// ABOUTME: TemplateEngine loads embedded HTML templates and renders them with Go's html/template.
// ABOUTME: Templates are embedded at compile time via go:embed for zero runtime path issues.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/2389-research/mammoscope/report"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData holds all data passed to the page templates.
type PageData struct {
	Title       string
	Envelope    string // JSON read by the client script from #bootstrap
	ImageURL    string
	PreviewURL  string // PNG rendering of ImageURL, viewable in any browser
	Results     *ResultsView
	Error       string
	Diagnostics string
	MockEnabled bool
}

// TemplateEngine loads and renders embedded HTML templates.
type TemplateEngine struct {
	templates  map[string]*template.Template
	standalone map[string]*template.Template
}

// templateFuncs returns the FuncMap available to all templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"percent":  report.Percent,
		"markdown": markdownToHTML,
	}
}

// NewTemplateEngine parses all embedded templates and returns a ready-to-use engine.
// Each page template is parsed together with the layout so that the layout wraps every page.
func NewTemplateEngine() (*TemplateEngine, error) {
	funcs := templateFuncs()

	pages := []string{
		"index.html",
	}

	engine := &TemplateEngine{
		templates:  make(map[string]*template.Template),
		standalone: make(map[string]*template.Template),
	}

	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(
			templateFS,
			"templates/layout.html",
			"templates/results.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		engine.templates[page] = t
	}

	// Standalone templates are rendered without the layout wrapper.
	// The results fragment is swapped into the page after an interactive prediction.
	standalonePages := []string{"results.html"}

	for _, page := range standalonePages {
		t, err := template.New(page).Funcs(funcs).ParseFS(
			templateFS,
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing standalone template %s: %w", page, err)
		}
		engine.standalone[page] = t
	}

	return engine, nil
}

// Render executes the named template with the given data and writes the result
// to w with the given status. The page is buffered so a template error never
// leaves a half-written response.
func (e *TemplateEngine) Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := e.RenderTo(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderTo executes the named template with the given data and writes the
// result to an arbitrary io.Writer (useful for testing without HTTP).
func (e *TemplateEngine) RenderTo(w io.Writer, name string, data any) error {
	t, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	return t.ExecuteTemplate(w, "layout.html", data)
}

// RenderStandalone executes a standalone template (no layout wrapping) and
// writes the result to w. It sets the Content-Type header to text/html.
func (e *TemplateEngine) RenderStandalone(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := e.RenderStandaloneTo(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// RenderStandaloneTo executes a standalone template (no layout wrapping) and
// writes the result to an arbitrary io.Writer.
func (e *TemplateEngine) RenderStandaloneTo(w io.Writer, name string, data any) error {
	t, ok := e.standalone[name]
	if !ok {
		return fmt.Errorf("standalone template %q not found", name)
	}

	return t.ExecuteTemplate(w, "results", data)
}

var markdown = goldmark.New()

// markdownToHTML converts one engine explanation line to HTML using goldmark.
// goldmark omits raw HTML unless WithUnsafe is set, so engine text cannot inject markup.
func markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}
