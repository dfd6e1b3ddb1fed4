// internal/web/web.go
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses the page templates. Each page is named after its file,
// e.g. "dashboard.html".
func Templates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(FuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// Static serves the stylesheet and the status script
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed pattern guarantees the directory
		panic(err)
	}
	return http.FS(sub)
}

// FuncMap holds the helpers the templates use
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"paragraphs": Paragraphs,
		"add":        func(a, b int) int { return a + b },
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i
			}
			return out
		},
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
		"score":   func(v float64) string { return fmt.Sprintf("%.1f", v) },
		// colors come from the stats service, never from user input
		"css":  func(s string) template.CSS { return template.CSS(s) },
		"dict": dict,
	}
}

// Paragraphs splits episode content on blank lines
func Paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dict builds a map from alternating keys and values so a nested template
// can take more than one argument
func dict(pairs ...interface{}) (map[string]interface{}, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}
