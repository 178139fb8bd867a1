package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"

	"github.com/petos/forum/models"
	"github.com/petos/forum/services"
)

//go:embed html/*.html
var files embed.FS

const layout = "html/base.layout.html"

// Renderer holds one parsed template set per page, each joined with the base layout.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every *.page.html; uploadPrefix is the URL under which stored files are served.
func New(uploadPrefix string) (*Renderer, error) {
	funcs := Funcs(uploadPrefix)
	pages, err := fs.Glob(files, "html/*.page.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		name := strings.TrimSuffix(path.Base(p), ".page.html")
		t, err := template.New(name).Funcs(funcs).ParseFS(files, layout, p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Instance implements gin's render.HTMLRender.
func (r *Renderer) Instance(name string, data any) render.Render {
	t, ok := r.pages[name]
	if !ok {
		t = r.pages["not_found"]
	}
	return render.HTML{Template: t, Name: "base", Data: data}
}

// Funcs are the helpers available to every page.
func Funcs(uploadPrefix string) template.FuncMap {
	return template.FuncMap{
		"upload": func(name string) string {
			return uploadPrefix + "/" + strings.TrimLeft(name, "/")
		},
		"icon": func(name *string) string {
			if name == nil || *name == "" {
				return uploadPrefix + "/" + services.DefaultAvatar
			}
			return uploadPrefix + "/" + *name
		},
		"safeHTML": func(s string) template.HTML {
			// Stored bodies are sanitized on write.
			return template.HTML(s)
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006, 15:04")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "never"
			}
			return t.Format("02 Jan 2006, 15:04")
		},
		"add": func(a, b int) int { return a + b },
		"roleName": func(r models.Role) string { return r.String() },
	}
}
