package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer parses each page template paired with layout.html.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

func NewTemplateRenderer() *TemplateRenderer {
	tmplFS, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}

	templates := make(map[string]*template.Template)
	for _, page := range []string{"first_blood.html"} {
		templates[page] = template.Must(template.New("").ParseFS(tmplFS, "layout.html", page))
	}

	// login.html is standalone
	templates["login.html"] = template.Must(template.New("").ParseFS(tmplFS, "login.html"))

	return &TemplateRenderer{templates: templates}
}

func (tr *TemplateRenderer) Render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := tr.templates[name]
	if !ok {
		slog.Error("template not found", "template", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	execName := "layout"
	if name == "login.html" {
		execName = name
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, execName, data); err != nil {
		slog.Error("template render error", "template", name, "error", err)
	}
}
