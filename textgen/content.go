package textgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"postforge/core"
)

// MaxHashtags caps the hashtag list of a post.
const MaxHashtags = 30

var (
	// ErrInvalidResponse marks a completion whose payload cannot be used.
	ErrInvalidResponse = errors.New("invalid completion response")
	// ErrNoJSONFound is returned when the completion holds no JSON object.
	ErrNoJSONFound = fmt.Errorf("%w: no JSON object found", ErrInvalidResponse)
	// ErrMissingCaption is returned when the JSON object has no usable caption.
	ErrMissingCaption = fmt.Errorf("%w: missing caption", ErrInvalidResponse)
)

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Models sometimes wrap JSON in prose or code fences even in JSON mode.
//
//	ExtractJSONObject("```json\n{\"caption\":\"hi\"}\n```") // {"caption":"hi"}
func ExtractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start > end {
		return "", ErrNoJSONFound
	}
	return text[start : end+1], nil
}

type postPayload struct {
	Caption      string          `json:"caption"`
	Hashtags     json.RawMessage `json:"hashtags"`
	VisualPrompt string          `json:"visual_prompt"`
	VisualAlt    string          `json:"visualPrompt"`
	ImagePrompt  string          `json:"image_prompt"`
}

// ParseContent turns a raw completion into GeneratedContent. Hashtags are
// normalized with NormalizeHashtags.
func ParseContent(raw string) (core.GeneratedContent, error) {
	jsonStr, err := ExtractJSONObject(raw)
	if err != nil {
		return core.GeneratedContent{}, err
	}

	var payload postPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return core.GeneratedContent{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	caption := strings.TrimSpace(payload.Caption)
	if caption == "" {
		return core.GeneratedContent{}, ErrMissingCaption
	}

	tags, err := decodeHashtags(payload.Hashtags)
	if err != nil {
		return core.GeneratedContent{}, err
	}

	visual := firstNonEmpty(payload.VisualPrompt, payload.VisualAlt, payload.ImagePrompt)

	return core.GeneratedContent{
		Caption:      caption,
		Hashtags:     NormalizeHashtags(tags),
		VisualPrompt: strings.TrimSpace(visual),
	}, nil
}

// decodeHashtags accepts a JSON array of strings or a single string of
// space or comma separated tags.
func decodeHashtags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		tags := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.FieldsFunc(joined, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		}), nil
	}

	return nil, fmt.Errorf("%w: hashtags must be a list or string", ErrInvalidResponse)
}

// NormalizeHashtags NFC-normalizes each tag, strips leading '#' markers and
// inner whitespace, drops blanks and case-insensitive duplicates, and keeps
// at most MaxHashtags entries in their original order.
//
//	NormalizeHashtags([]string{"#Cake", "cake", "#", "baking day"})
//	// []string{"Cake", "bakingday"}
func NormalizeHashtags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	folder := cases.Fold()

	for _, tag := range tags {
		tag = norm.NFC.String(tag)
		tag = strings.TrimSpace(tag)
		tag = strings.TrimLeft(tag, "#＃")
		tag = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, tag)
		if tag == "" {
			continue
		}

		key := folder.String(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, tag)

		if len(result) == MaxHashtags {
			break
		}
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
