package textgen

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Prompt size limits, counted in characters.
const (
	MaxSystemPromptChars = 2000
	MaxUserPromptChars   = 6000
)

// TruncatePrompt cuts s to at most max characters without splitting a rune.
func TruncatePrompt(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

const postSystemPrompt = `You are a social media copywriter. Reply with a single JSON object and nothing else.
Keys:
  "caption": an engaging post caption of at most 2200 characters (required)
  "hashtags": an array of up to 30 relevant hashtags without the leading #%s
Keep the tone warm and specific to the topic.`

const visualPromptKey = `
  "visual_prompt": a vivid one-paragraph description of an image that would accompany the post`

// PostPrompts builds the system and user prompts for a post about topic.
// The visual_prompt key is only requested when an image is wanted.
func PostPrompts(topic string, includeImage bool) (system, user string) {
	extra := ""
	if includeImage {
		extra = visualPromptKey
	}
	system = fmt.Sprintf(postSystemPrompt, extra)
	user = "Write a social media post about: " + strings.TrimSpace(topic)
	return system, user
}
