// Package storage writes finished posts to the local filesystem.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
)

// File names inside a post directory.
const (
	CaptionFile  = "caption.txt"
	HashtagsFile = "hashtags.txt"
	MetadataFile = "metadata.json"
	imageBase    = "post"
	sourceBase   = "source"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileStore lays posts out as <root>/<YYYY-MM-DD>/<request id>/.
type FileStore struct {
	root   string
	logger *logging.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *logging.Logger) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileStore{root: root, logger: logger.Named("storage")}, nil
}

// Root returns the base directory.
func (s *FileStore) Root() string { return s.root }

// postMetadata is written to metadata.json.
type postMetadata struct {
	RequestID    string                 `json:"requestId"`
	Topic        string                 `json:"topic"`
	Caption      string                 `json:"caption"`
	Hashtags     []string               `json:"hashtags"`
	VisualPrompt string                 `json:"visualPrompt,omitempty"`
	Render       core.RenderMetadata    `json:"render"`
	Image        *imageMetadata         `json:"image,omitempty"`
	Generation   map[string]interface{} `json:"generation,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

type imageMetadata struct {
	URL           string `json:"url,omitempty"`
	Provider      string `json:"provider"`
	Model         string `json:"model,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
}

// Persist writes the rendered image, caption, hashtags and metadata. Raw
// provider bytes, when present, are kept as source.<ext>. Every file is
// written to a temporary name and renamed into place.
func (s *FileStore) Persist(ctx context.Context, result *core.CompositionResult, rc core.RequestContext) (core.AssetLocations, error) {
	if result == nil || len(result.Buffer) == 0 {
		return core.AssetLocations{}, errors.New("storage: empty composition")
	}
	if err := ctx.Err(); err != nil {
		return core.AssetLocations{}, err
	}

	created := rc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	dir := filepath.Join(s.root, created.UTC().Format("2006-01-02"), dirName(rc.RequestID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.AssetLocations{}, fmt.Errorf("storage: create post directory: %w", err)
	}

	locs := core.AssetLocations{
		ImagePath:    filepath.Join(dir, imageBase+"."+extension(result.Metadata.Format)),
		CaptionPath:  filepath.Join(dir, CaptionFile),
		HashtagsPath: filepath.Join(dir, HashtagsFile),
		MetadataPath: filepath.Join(dir, MetadataFile),
	}

	if err := writeAtomic(locs.ImagePath, result.Buffer); err != nil {
		return core.AssetLocations{}, err
	}
	if err := writeAtomic(locs.CaptionPath, []byte(rc.Content.Caption+"\n")); err != nil {
		return core.AssetLocations{}, err
	}
	if err := writeAtomic(locs.HashtagsPath, []byte(hashtagText(rc.Content.Hashtags))); err != nil {
		return core.AssetLocations{}, err
	}

	if rc.Image != nil && len(rc.Image.Data) > 0 {
		locs.SourcePath = filepath.Join(dir, sourceBase+"."+sourceExtension(rc.Image.ContentType))
		if err := writeAtomic(locs.SourcePath, rc.Image.Data); err != nil {
			return core.AssetLocations{}, err
		}
	}

	meta := postMetadata{
		RequestID:    rc.RequestID,
		Topic:        rc.Topic,
		Caption:      rc.Content.Caption,
		Hashtags:     rc.Content.Hashtags,
		VisualPrompt: rc.Content.VisualPrompt,
		Render:       result.Metadata,
		Generation:   rc.Content.Metadata,
		CreatedAt:    created.UTC(),
	}
	if meta.Hashtags == nil {
		meta.Hashtags = []string{}
	}
	if rc.Image != nil {
		meta.Image = &imageMetadata{
			URL:           rc.Image.URL,
			Provider:      rc.Image.Provider,
			Model:         rc.Image.Model,
			RevisedPrompt: rc.Image.RevisedPrompt,
			Attempts:      rc.Image.Attempts,
		}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.AssetLocations{}, fmt.Errorf("storage: encode metadata: %w", err)
	}
	if err := writeAtomic(locs.MetadataPath, data); err != nil {
		return core.AssetLocations{}, err
	}

	s.logger.Debug("post persisted",
		zap.String("request_id", rc.RequestID),
		zap.String("dir", dir),
		zap.Int("bytes", len(result.Buffer)))
	return locs, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("storage: move %s into place: %w", filepath.Base(path), err)
	}
	ok = true
	return nil
}

func dirName(requestID string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(requestID, "_"), "._")
	if name == "" {
		return "post-" + time.Now().UTC().Format("150405.000000000")
	}
	return name
}

func extension(format core.ImageFormat) string {
	switch format {
	case core.FormatJPEG:
		return "jpg"
	case core.FormatWEBP:
		return "webp"
	default:
		return "png"
	}
}

func sourceExtension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func hashtagText(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, "#"+tag)
	}
	return strings.Join(out, " ") + "\n"
}
