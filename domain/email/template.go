package email

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

//go:embed templates
var templateFS embed.FS

// TemplateService handles email template rendering using Handlebars.
//
// Templates are embedded in the binary with the structure:
//   - templates/layouts/*.hbs - Base layouts that wrap content
//   - templates/partials/*.hbs - Reusable template parts (buttons, footers)
//   - templates/*.hbs - Main email templates
//
// Partials and helpers are registered per template so services built in
// parallel tests never touch raymond's global registry.
type TemplateService struct {
	log       *slog.Logger
	catalog   *catalog.Catalog
	partials  map[string]string
	templates map[string]*raymond.Template
	layouts   map[string]*raymond.Template
}

// TemplateRenderResult contains the rendered email content
type TemplateRenderResult struct {
	HTML string
	Text string
}

// TemplateContext is the data passed to templates
type TemplateContext map[string]any

// NewTemplateService parses the embedded templates.
func NewTemplateService(cat *catalog.Catalog, log *slog.Logger) (*TemplateService, error) {
	return newTemplateService(templateFS, "templates", cat, log)
}

func newTemplateService(fsys fs.FS, root string, cat *catalog.Catalog, log *slog.Logger) (*TemplateService, error) {
	ts := &TemplateService{
		log:       log.With(logger.Scope("email.template")),
		catalog:   cat,
		partials:  make(map[string]string),
		templates: make(map[string]*raymond.Template),
		layouts:   make(map[string]*raymond.Template),
	}

	if err := ts.readDir(fsys, path.Join(root, "partials"), func(name, content string) error {
		ts.partials[name] = content
		return nil
	}); err != nil {
		return nil, err
	}

	if err := ts.readDir(fsys, path.Join(root, "layouts"), func(name, content string) error {
		tmpl, err := ts.parse(content)
		if err != nil {
			return fmt.Errorf("failed to parse layout %s: %w", name, err)
		}
		ts.layouts[name] = tmpl
		return nil
	}); err != nil {
		return nil, err
	}

	if err := ts.readDir(fsys, root, func(name, content string) error {
		tmpl, err := ts.parse(content)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		ts.templates[name] = tmpl
		return nil
	}); err != nil {
		return nil, err
	}

	ts.log.Info("loaded embedded email templates",
		slog.Int("templates", len(ts.templates)),
		slog.Int("layouts", len(ts.layouts)),
		slog.Int("partials", len(ts.partials)))

	return ts, nil
}

// readDir calls fn for every .hbs file directly under dir. A missing dir is not an error.
func (ts *TemplateService) readDir(fsys fs.FS, dir string, fn func(name, content string) error) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		ts.log.Debug("template directory not found", slog.String("path", dir))
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hbs") {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if err := fn(strings.TrimSuffix(entry.Name(), ".hbs"), string(content)); err != nil {
			return err
		}
	}
	return nil
}

func (ts *TemplateService) parse(content string) (*raymond.Template, error) {
	tmpl, err := raymond.Parse(content)
	if err != nil {
		return nil, err
	}
	for name, partial := range ts.partials {
		tmpl.RegisterPartial(name, partial)
	}
	tmpl.RegisterHelper("label", ts.labelHelper)
	return tmpl, nil
}

// labelHelper renders a catalog id (stack or seniority) as its display label.
func (ts *TemplateService) labelHelper(id any) string {
	s := fmt.Sprint(id)
	if ts.catalog == nil {
		return s
	}
	return ts.catalog.Label(s)
}

// Render renders an email template with the given context
func (ts *TemplateService) Render(templateName string, context TemplateContext, layoutName string) (*TemplateRenderResult, error) {
	tmpl, ok := ts.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", templateName)
	}

	content, err := tmpl.Exec(map[string]any(context))
	if err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	if layoutName != "" {
		layout, ok := ts.layouts[layoutName]
		if !ok {
			ts.log.Debug("layout not found, using template directly",
				slog.String("layout", layoutName))
		} else {
			layoutCtx := make(map[string]any, len(context)+1)
			for k, v := range context {
				layoutCtx[k] = v
			}
			layoutCtx["content"] = raymond.SafeString(content)

			content, err = layout.Exec(layoutCtx)
			if err != nil {
				return nil, fmt.Errorf("failed to render layout %s: %w", layoutName, err)
			}
		}
	}

	return &TemplateRenderResult{
		HTML: content,
		Text: generatePlainText(context),
	}, nil
}

// HasTemplate checks if a template exists
func (ts *TemplateService) HasTemplate(name string) bool {
	_, ok := ts.templates[name]
	return ok
}

// ListTemplates returns all available template names
func (ts *TemplateService) ListTemplates() []string {
	names := make([]string, 0, len(ts.templates))
	for name := range ts.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// generatePlainText creates a plain text version from context
func generatePlainText(context TemplateContext) string {
	if plainText, ok := context["plainText"].(string); ok && plainText != "" {
		return plainText
	}

	var parts []string
	for _, key := range []string{"title", "message"} {
		if v, ok := context[key].(string); ok && v != "" {
			parts = append(parts, v, "")
		}
	}
	for _, link := range []struct{ key, label string }{
		{"confirmUrl", "Confirmar"},
		{"loginUrl", "Entrar"},
		{"ctaUrl", "Link"},
		{"supportUrl", "Apoiar"},
		{"postingUrl", "Anúncio"},
		{"unsubscribeUrl", "Cancelar inscrição"},
	} {
		if v, ok := context[link.key].(string); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", link.label, v))
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}
