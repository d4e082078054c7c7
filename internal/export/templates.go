package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var treeTemplate = template.Must(template.New("tree.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/tree.html"))

// TemplateData holds data for tree template rendering
type TemplateData struct {
	Title       string
	Note        string
	GeneratedAt time.Time
	Count       int
	Items       []TemplateItem
	Completed   []TemplateItem
}

// TemplateItem is one rendered list entry.
type TemplateItem struct {
	Name      string
	Note      string
	URL       string
	Children  []TemplateItem
	Completed []TemplateItem
}

// RenderTreeHTML renders the tree template with provided data
func RenderTreeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := treeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
