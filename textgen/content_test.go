package textgen

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseContent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		caption  string
		hashtags []string
		visual   string
		wantErr  error
	}{
		{
			name:     "plain object",
			raw:      `{"caption":"Hello","hashtags":["a","b"],"visual_prompt":"sunset"}`,
			caption:  "Hello",
			hashtags: []string{"a", "b"},
			visual:   "sunset",
		},
		{
			name:     "code fenced",
			raw:      "```json\n{\"caption\":\" Hi \",\"hashtags\":\"#one, #two three\"}\n```",
			caption:  "Hi",
			hashtags: []string{"one", "two", "three"},
		},
		{
			name:     "camel case visual prompt",
			raw:      `Here you go: {"caption":"C","visualPrompt":"lake"}`,
			caption:  "C",
			hashtags: []string{},
			visual:   "lake",
		},
		{name: "no json", raw: "sorry, I cannot", wantErr: ErrNoJSONFound},
		{name: "blank caption", raw: `{"caption":"   "}`, wantErr: ErrMissingCaption},
		{name: "bad json", raw: `{"caption": }`, wantErr: ErrInvalidResponse},
		{name: "numeric hashtags", raw: `{"caption":"x","hashtags":42}`, wantErr: ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContent(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseContent: %v", err)
			}
			if got.Caption != tt.caption {
				t.Errorf("caption = %q, want %q", got.Caption, tt.caption)
			}
			if !reflect.DeepEqual(got.Hashtags, tt.hashtags) {
				t.Errorf("hashtags = %#v, want %#v", got.Hashtags, tt.hashtags)
			}
			if got.VisualPrompt != tt.visual {
				t.Errorf("visual = %q, want %q", got.VisualPrompt, tt.visual)
			}
		})
	}
}

func TestNormalizeHashtags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"strips markers", []string{"#Cake", "##bake", "＃wide"}, []string{"Cake", "bake", "wide"}},
		{"case-insensitive dedupe keeps first", []string{"Cake", "CAKE", "cake"}, []string{"Cake"}},
		{"drops blanks", []string{"", "#", "  "}, []string{}},
		{"removes inner whitespace", []string{"baking day"}, []string{"bakingday"}},
		{"nfc before dedupe", []string{"cafe\u0301", "caf\u00e9"}, []string{"caf\u00e9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeHashtags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeHashtags(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeHashtagsCapsLength(t *testing.T) {
	var tags []string
	for i := 0; i < 50; i++ {
		tags = append(tags, fmt.Sprintf("tag%d", i))
	}
	got := NormalizeHashtags(tags)
	if len(got) != MaxHashtags {
		t.Fatalf("len = %d, want %d", len(got), MaxHashtags)
	}
	if got[0] != "tag0" || got[MaxHashtags-1] != "tag29" {
		t.Errorf("order not preserved: first=%q last=%q", got[0], got[MaxHashtags-1])
	}
}

func TestTruncatePrompt(t *testing.T) {
	if got := TruncatePrompt("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := TruncatePrompt("héllo wörld", 5); got != "héllo" {
		t.Errorf("got %q", got)
	}
	if got := TruncatePrompt("abc", 0); got != "" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("日本", 2000)
	got := TruncatePrompt(long, MaxSystemPromptChars)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != MaxSystemPromptChars {
		t.Errorf("truncated to %d runes, valid=%v", utf8.RuneCountInString(got), utf8.ValidString(got))
	}
}

func TestPostPrompts(t *testing.T) {
	sys, user := PostPrompts("  sourdough  ", true)
	if !strings.Contains(sys, "visual_prompt") {
		t.Error("image prompt should request visual_prompt")
	}
	if user != "Write a social media post about: sourdough" {
		t.Errorf("user = %q", user)
	}

	sys, _ = PostPrompts("sourdough", false)
	if strings.Contains(sys, "visual_prompt") {
		t.Error("text-only prompt should not request visual_prompt")
	}
}
