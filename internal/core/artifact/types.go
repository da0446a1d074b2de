package artifact

// Artifact is one rendered file.
type Artifact struct {
	// Path is relative to the output directory and uses forward slashes.
	Path    string
	Content []byte
}

// TemplateRenderer executes a named template. templates.Registry
// implements it.
type TemplateRenderer interface {
	Render(id string, data any) (string, error)
}
