package compose

import (
	"context"
	"errors"
	"testing"

	"postforge/core"
	"postforge/render"
)

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	var ids []string
	for _, tmpl := range r.List() {
		ids = append(ids, tmpl.ID)
	}
	want := []string{"announcement", "quote-card", "stats-showcase"}
	if len(ids) != len(want) {
		t.Fatalf("templates = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("templates[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestParseRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no builder", "templates:\n  - id: poster\n    palette: {background: \"#000\", text: \"#fff\", accent: \"#fff\"}\n"},
		{"bad field type", "templates:\n  - id: quote-card\n    palette: {background: \"#000\", text: \"#fff\", accent: \"#fff\"}\n    fields:\n      - {name: quote, type: number}\n"},
		{"bad palette", "templates:\n  - id: quote-card\n    palette: {background: \"navy\", text: \"#fff\", accent: \"#fff\"}\n"},
		{"duplicate", "templates:\n  - id: quote-card\n  - id: quote-card\n"},
		{"not yaml", "templates: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRegistry([]byte(tt.doc)); err == nil {
				t.Error("ParseRegistry() error = nil")
			}
		})
	}
}

func TestTemplateValidate(t *testing.T) {
	r, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	tests := []struct {
		name     string
		template string
		data     map[string]interface{}
		field    string
	}{
		{"quote ok", "quote-card", map[string]interface{}{"quote": "Stay hungry", "author": "Someone"}, ""},
		{"quote missing", "quote-card", map[string]interface{}{"author": "Someone"}, "data.quote"},
		{"quote blank", "quote-card", map[string]interface{}{"quote": "   "}, "data.quote"},
		{"quote not string", "quote-card", map[string]interface{}{"quote": 42.0}, "data.quote"},
		{"bad background", "quote-card", map[string]interface{}{"quote": "x", "background": "purple"}, "data.background"},
		{"unknown field", "quote-card", map[string]interface{}{"quote": "x", "font": "serif"}, "data.font"},
		{"stats ok", "stats-showcase", map[string]interface{}{
			"title": "Q3",
			"stats": []interface{}{
				map[string]interface{}{"label": "Users", "value": "12k"},
				map[string]interface{}{"label": "Growth", "value": 38.5},
			},
		}, ""},
		{"stats missing title", "stats-showcase", map[string]interface{}{
			"stats": []interface{}{map[string]interface{}{"label": "Users", "value": "12k"}},
		}, "data.title"},
		{"stats empty", "stats-showcase", map[string]interface{}{"title": "Q3", "stats": []interface{}{}}, "data.stats"},
		{"stats not list", "stats-showcase", map[string]interface{}{"title": "Q3", "stats": "12k users"}, "data.stats"},
		{"stats entry without value", "stats-showcase", map[string]interface{}{
			"title": "Q3",
			"stats": []interface{}{map[string]interface{}{"label": "Users"}},
		}, "data.stats[0]"},
		{"too many stats", "stats-showcase", map[string]interface{}{"title": "Q3", "stats": sevenStats()}, "data.stats"},
		{"announcement ok", "announcement", map[string]interface{}{"headline": "We launched", "cta": "Try it"}, ""},
		{"announcement missing headline", "announcement", map[string]interface{}{"body": "details"}, "data.headline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, ok := r.Get(tt.template)
			if !ok {
				t.Fatalf("template %q not found", tt.template)
			}
			_, err := tmpl.Validate(tt.data)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func sevenStats() []interface{} {
	stats := make([]interface{}, 7)
	for i := range stats {
		stats[i] = map[string]interface{}{"label": "metric", "value": float64(i)}
	}
	return stats
}

func TestComposeTemplate(t *testing.T) {
	browser, tree := newFakes()
	e, err := New([]render.Backend{browser, tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	opts := core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 1080, Height: 1080, Format: core.FormatPNG}

	res, err := e.ComposeTemplate(context.Background(), "stats-showcase", map[string]interface{}{
		"title":    "Quarterly results",
		"subtitle": "Up and to the right",
		"stats": []interface{}{
			map[string]interface{}{"label": "Revenue", "value": "$4.2M"},
			map[string]interface{}{"label": "Customers", "value": 1200.0},
			map[string]interface{}{"label": "NPS", "value": "71"},
			map[string]interface{}{"label": "Churn", "value": "1.8%"},
		},
	}, opts)
	if err != nil {
		t.Fatalf("ComposeTemplate() error = %v", err)
	}
	if res.Metadata.Template != "stats-showcase" || res.Metadata.ByteSize != len(res.Buffer) {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if tree.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", tree.calls)
	}

	var texts []string
	render.Walk(tree.tree, func(n *render.Node) bool {
		if n.Kind == render.KindText {
			texts = append(texts, n.Text)
		}
		return true
	})
	for _, want := range []string{"Quarterly results", "$4.2M", "1200", "Churn"} {
		if !containsString(texts, want) {
			t.Errorf("tree texts %v missing %q", texts, want)
		}
	}
}

func TestComposeTemplate_ValidationBeforeBackend(t *testing.T) {
	browser, tree := newFakes()
	e, err := New([]render.Backend{browser, tree})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tests := []struct {
		name string
		id   string
		data map[string]interface{}
		opts core.RenderOptions
	}{
		{"unknown template", "poster", map[string]interface{}{}, core.RenderOptions{Engine: core.EngineBrowser, Width: 10, Height: 10, Format: core.FormatPNG}},
		{"missing quote", "quote-card", map[string]interface{}{}, core.RenderOptions{Engine: core.EngineBrowser, Width: 10, Height: 10, Format: core.FormatPNG}},
		{"raster webp", "quote-card", map[string]interface{}{"quote": "x"}, core.RenderOptions{Engine: core.EngineTreeToRaster, Width: 10, Height: 10, Format: core.FormatWEBP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ComposeTemplate(context.Background(), tt.id, tt.data, tt.opts)
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("ComposeTemplate() error = %v, want ValidationError", err)
			}
			if browser.calls+tree.calls != 0 {
				t.Errorf("backend called")
			}
		})
	}
}

func TestTemplateTrees_Valid(t *testing.T) {
	r, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	inputs := map[string]map[string]interface{}{
		"quote-card":     {"quote": "Simplicity is prerequisite for reliability.", "author": "E. W. Dijkstra", "background": "#334155"},
		"stats-showcase": {"title": "Launch week", "stats": []interface{}{map[string]interface{}{"label": "Signups", "value": "5k"}}},
		"announcement":   {"headline": "Version 2 is here", "body": "Faster renders.", "cta": "Upgrade"},
	}
	for id, data := range inputs {
		t.Run(id, func(t *testing.T) {
			tmpl, _ := r.Get(id)
			values, err := tmpl.Validate(data)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			tree := builders[id](values, tmpl.Palette, 1080, 1080)
			if err := render.Validate(tree); err != nil {
				t.Errorf("tree is invalid: %v", err)
			}
			if tree.Style.Width != 1080 || tree.Style.Height != 1080 {
				t.Errorf("root size = %vx%v", tree.Style.Width, tree.Style.Height)
			}
		})
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
