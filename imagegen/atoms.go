package imagegen

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// IsAzureEndpoint checks if the given endpoint URL is an Azure OpenAI endpoint.
//
//	IsAzureEndpoint("https://myresource.openai.azure.com")            // true
//	IsAzureEndpoint("https://myresource.cognitiveservices.azure.com") // true
//	IsAzureEndpoint("https://api.openai.com")                         // false
func IsAzureEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "openai.azure.com") ||
		strings.Contains(lower, "cognitiveservices.azure.com")
}

// ParseSize reads a "WIDTHxHEIGHT" size descriptor.
//
//	ParseSize("1792x1024") // 1792, 1024, nil
func ParseSize(size string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(size)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("imagegen: size %q is not WIDTHxHEIGHT", size)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("imagegen: invalid width in size %q", size)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("imagegen: invalid height in size %q", size)
	}
	return w, h, nil
}

// DataURL encodes data as a base64 data: URL. An empty contentType is
// sniffed from the bytes.
func DataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// formatFromContentType maps a MIME type to a short format name.
func formatFromContentType(contentType string) string {
	lower := strings.ToLower(contentType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = lower[:idx]
	}
	switch strings.TrimSpace(lower) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return ""
	}
}
