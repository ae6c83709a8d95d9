package compose

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"postforge/core"
	"postforge/render"
)

//go:embed templates.yaml
var templatesYAML []byte

// Field types understood by template schemas.
const (
	FieldString = "string"
	FieldColor  = "color"
	FieldStats  = "stats"
)

// FieldSpec declares one template input.
type FieldSpec struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type" json:"type"`
	Required  bool   `yaml:"required" json:"required"`
	MaxLength int    `yaml:"maxLength" json:"maxLength,omitempty"`
	MaxItems  int    `yaml:"maxItems" json:"maxItems,omitempty"`
}

// Palette holds the default colors of a template.
type Palette struct {
	Background string `yaml:"background" json:"background"`
	Text       string `yaml:"text" json:"text"`
	Accent     string `yaml:"accent" json:"accent"`
}

// Template is one schema from templates.yaml.
type Template struct {
	ID          string      `yaml:"id" json:"id"`
	Description string      `yaml:"description" json:"description"`
	Palette     Palette     `yaml:"palette" json:"palette"`
	Fields      []FieldSpec `yaml:"fields" json:"fields"`
}

// Stat is one entry of a stats field.
type Stat struct {
	Label string
	Value string
}

// TemplateData is validated template input.
type TemplateData struct {
	strings map[string]string
	stats   map[string][]Stat
}

// String returns a string or color field, or "" when absent.
func (d TemplateData) String(name string) string { return d.strings[name] }

// Stats returns a stats field.
func (d TemplateData) Stats(name string) []Stat { return d.stats[name] }

// Registry holds the parsed template schemas.
type Registry struct {
	templates map[string]Template
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadRegistry parses the embedded templates.yaml.
func LoadRegistry() (*Registry, error) {
	return ParseRegistry(templatesYAML)
}

// ParseRegistry parses a template schema document. Every template must have
// a tree builder and only known field types.
func ParseRegistry(data []byte) (*Registry, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("compose: parse templates: %w", err)
	}

	r := &Registry{templates: make(map[string]Template, len(file.Templates))}
	for _, t := range file.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("compose: template without id")
		}
		if _, dup := r.templates[t.ID]; dup {
			return nil, fmt.Errorf("compose: duplicate template %q", t.ID)
		}
		if _, ok := builders[t.ID]; !ok {
			return nil, fmt.Errorf("compose: template %q has no builder", t.ID)
		}
		for _, f := range t.Fields {
			switch f.Type {
			case FieldString, FieldColor, FieldStats:
			default:
				return nil, fmt.Errorf("compose: template %q field %q has unknown type %q", t.ID, f.Name, f.Type)
			}
		}
		for _, c := range []string{t.Palette.Background, t.Palette.Text, t.Palette.Accent} {
			if _, err := render.ParseColor(c); err != nil {
				return nil, fmt.Errorf("compose: template %q palette: %w", t.ID, err)
			}
		}
		r.templates[t.ID] = t
	}
	return r, nil
}

// Get returns the template with id.
func (r *Registry) Get(id string) (Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// List returns every template sorted by id.
func (r *Registry) List() []Template {
	list := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Validate checks data against the template schema. Unknown fields are
// rejected. Failures are *core.ValidationError.
func (t Template) Validate(data map[string]interface{}) (TemplateData, error) {
	out := TemplateData{strings: map[string]string{}, stats: map[string][]Stat{}}

	known := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		known[f.Name] = true
	}
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !known[name] {
			return TemplateData{}, core.NewValidationError("data."+name, "is not a field of template %q", t.ID)
		}
	}

	for _, f := range t.Fields {
		field := "data." + f.Name
		raw, present := data[f.Name]
		if !present || raw == nil {
			if f.Required {
				return TemplateData{}, core.NewValidationError(field, "is required")
			}
			continue
		}

		switch f.Type {
		case FieldString, FieldColor:
			s, ok := raw.(string)
			if !ok {
				return TemplateData{}, core.NewValidationError(field, "must be a string")
			}
			s = strings.TrimSpace(s)
			if s == "" {
				if f.Required {
					return TemplateData{}, core.NewValidationError(field, "must not be empty")
				}
				continue
			}
			if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
				return TemplateData{}, core.NewValidationError(field, "exceeds %d characters", f.MaxLength)
			}
			if f.Type == FieldColor {
				if _, err := render.ParseColor(s); err != nil {
					return TemplateData{}, core.NewValidationError(field, "must be a hex color")
				}
			}
			out.strings[f.Name] = s

		case FieldStats:
			stats, err := parseStats(field, raw)
			if err != nil {
				return TemplateData{}, err
			}
			if len(stats) == 0 {
				if f.Required {
					return TemplateData{}, core.NewValidationError(field, "must not be empty")
				}
				continue
			}
			if f.MaxItems > 0 && len(stats) > f.MaxItems {
				return TemplateData{}, core.NewValidationError(field, "has more than %d entries", f.MaxItems)
			}
			out.stats[f.Name] = stats
		}
	}
	return out, nil
}

func parseStats(field string, raw interface{}) ([]Stat, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, core.NewValidationError(field, "must be a list")
	}
	stats := make([]Stat, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, core.NewValidationError(fmt.Sprintf("%s[%d]", field, i), "must be an object with label and value")
		}
		label, _ := entry["label"].(string)
		value, ok := scalarString(entry["value"])
		if strings.TrimSpace(label) == "" || !ok || value == "" {
			return nil, core.NewValidationError(fmt.Sprintf("%s[%d]", field, i), "needs a label and a value")
		}
		stats = append(stats, Stat{Label: strings.TrimSpace(label), Value: value})
	}
	return stats, nil
}

// scalarString accepts strings and JSON numbers.
func scalarString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	default:
		return "", false
	}
}
