// Package catalog holds the fixed vocabularies (seniority levels and tech
// stacks) shared by subscriptions, job postings and the digest matcher.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

var Module = fx.Module("catalog",
	fx.Provide(Load),
)

// Option is one selectable value.
type Option struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Catalog is the parsed vocabulary.
type Catalog struct {
	SeniorityLevels []Option `yaml:"seniorityLevels" json:"seniorityLevels"`
	Stacks          []Option `yaml:"stacks" json:"stacks"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// Parse decodes a catalog document and rejects empty or duplicate entries.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.SeniorityLevels) == 0 || len(c.Stacks) == 0 {
		return nil, fmt.Errorf("catalog must list seniority levels and stacks")
	}
	for _, group := range [][]Option{c.SeniorityLevels, c.Stacks} {
		seen := make(map[string]bool, len(group))
		for _, o := range group {
			if o.ID == "" || seen[o.ID] {
				return nil, fmt.Errorf("catalog: empty or duplicate id %q", o.ID)
			}
			seen[o.ID] = true
		}
	}
	return &c, nil
}

// IsSeniority reports whether id is a known seniority level.
func (c *Catalog) IsSeniority(id string) bool {
	return indexOf(c.SeniorityLevels, id) >= 0
}

// IsStack reports whether id is a known stack.
func (c *Catalog) IsStack(id string) bool {
	return indexOf(c.Stacks, id) >= 0
}

// Label returns the display label for a seniority or stack id, or the id itself.
func (c *Catalog) Label(id string) string {
	if i := indexOf(c.SeniorityLevels, id); i >= 0 {
		return c.SeniorityLevels[i].Label
	}
	if i := indexOf(c.Stacks, id); i >= 0 {
		return c.Stacks[i].Label
	}
	return id
}

// Labels maps ids to labels, keeping order.
func (c *Catalog) Labels(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Label(id))
	}
	return out
}

// NormalizeStacks lowercases, trims and de-duplicates stack ids.
func NormalizeStacks(stacks []string) []string {
	out := make([]string, 0, len(stacks))
	for _, s := range stacks {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// RegisterValidations adds the `seniority` and `stack` tags. `stack` accepts a
// string or a slice of strings; use it with `dive` for slices.
func (c *Catalog) RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("seniority", func(fl validator.FieldLevel) bool {
		return c.IsSeniority(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("stack", func(fl validator.FieldLevel) bool {
		return c.IsStack(fl.Field().String())
	})
}

func indexOf(opts []Option, id string) int {
	id = strings.ToLower(strings.TrimSpace(id))
	return slices.IndexFunc(opts, func(o Option) bool { return o.ID == id })
}
