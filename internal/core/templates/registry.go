package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"
)

//go:embed files/*.tmpl
var filesFS embed.FS

// Template ids of the embedded templates.
const (
	Caddyfile  = "Caddyfile"
	NginxConf  = "nginx.conf"
	HAProxyCfg = "haproxy.cfg"
	TraefikYML = "traefik.yml"
	Dockerfile = "Dockerfile"
)

const templateExt = ".tmpl"

// ErrUnknownTemplate is returned by Render for an id with no template.
var ErrUnknownTemplate = errors.New("unknown template")

// Registry holds compiled templates keyed by id. It is built once and
// never modified afterwards.
type Registry struct {
	templates map[string]*template.Template
}

// New compiles the embedded templates.
func New() (*Registry, error) {
	return Load(filesFS, "files")
}

// Load compiles every *.tmpl file in dir of fsys. The id of a template is
// its file name without the extension.
func Load(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir %s: %w", dir, err)
	}

	r := &Registry{templates: make(map[string]*template.Template, len(entries))}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), templateExt) {
			continue
		}

		id := strings.TrimSuffix(e.Name(), templateExt)
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", id, err)
		}

		tmpl, err := template.New(id).Funcs(funcMap()).Option("missingkey=error").Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", id, err)
		}
		r.templates[id] = tmpl
	}

	return r, nil
}

// Render executes the template id with data.
func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", id, err)
	}
	return sb.String(), nil
}

// IDs returns the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
