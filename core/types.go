package core

import "time"

// Engine selects a composition backend.
type Engine string

const (
	EngineBrowser      Engine = "browser"
	EngineTreeToRaster Engine = "tree-to-raster"
)

// ImageFormat is the encoded format of a rendered buffer.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWEBP ImageFormat = "webp"
)

// ContentType returns the MIME type for the format.
func (f ImageFormat) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// LogoPosition anchors the logo on the canvas.
type LogoPosition string

const (
	LogoTopLeft     LogoPosition = "top-left"
	LogoTopRight    LogoPosition = "top-right"
	LogoBottomLeft  LogoPosition = "bottom-left"
	LogoBottomRight LogoPosition = "bottom-right"
	LogoCenter      LogoPosition = "center"
)

// LogoPositions lists every valid anchor.
var LogoPositions = []LogoPosition{LogoTopLeft, LogoTopRight, LogoBottomLeft, LogoBottomRight, LogoCenter}

// GenerationRequest is one caller action. It is not modified after it is accepted.
type GenerationRequest struct {
	RequestID     string `json:"requestId,omitempty"`
	Topic         string `json:"topic" validate:"required,max=500"`
	IncludeImage  *bool  `json:"includeImage,omitempty"`
	ImageProvider string `json:"imageProvider,omitempty" validate:"omitempty,oneof=openai azure gemini"`
}

// WantsImage reports whether an image should be attempted. Unset means true.
func (r GenerationRequest) WantsImage() bool {
	return r.IncludeImage == nil || *r.IncludeImage
}

// GeneratedContent is the text half of a post.
type GeneratedContent struct {
	Caption      string                 `json:"caption"`
	Hashtags     []string               `json:"hashtags"`
	VisualPrompt string                 `json:"visualPrompt,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ImageMetadata describes a generated image.
type ImageMetadata struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	ByteSize int    `json:"byteSize"`
}

// ImageResult is a generated image. Data is empty when the download failed.
type ImageResult struct {
	URL           string        `json:"url,omitempty"`
	Data          []byte        `json:"-"`
	ContentType   string        `json:"contentType,omitempty"`
	RevisedPrompt string        `json:"revisedPrompt,omitempty"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Attempts      int           `json:"attempts"`
	Metadata      ImageMetadata `json:"metadata"`
}

// CompositionSettings carries brand and overlay choices.
type CompositionSettings struct {
	LogoPosition LogoPosition `json:"logoPosition" validate:"omitempty,oneof=top-left top-right bottom-left bottom-right center"`
	TextOverlay  bool         `json:"textOverlay"`
	LogoURL      string       `json:"logoUrl,omitempty" validate:"omitempty,url|datauri"`
	BrandColor   string       `json:"brandColor,omitempty" validate:"omitempty,hexcolor"`
	TextColor    string       `json:"textColor,omitempty" validate:"omitempty,hexcolor"`
}

// RenderOptions selects the backend and output encoding.
type RenderOptions struct {
	Engine            Engine      `json:"engine" validate:"required,oneof=browser tree-to-raster"`
	Width             int         `json:"width" validate:"gt=0"`
	Height            int         `json:"height" validate:"gt=0"`
	Quality           int         `json:"quality" validate:"gte=0,lte=100"`
	Format            ImageFormat `json:"format" validate:"required"`
	DeviceScaleFactor float64     `json:"deviceScaleFactor,omitempty" validate:"omitempty,gt=0,lte=4"`
	Debug             bool        `json:"debug,omitempty"`
}

// RenderMetadata describes a rendered buffer. ByteSize always equals len(Buffer).
type RenderMetadata struct {
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Format       ImageFormat `json:"format"`
	ByteSize     int         `json:"byteSize"`
	Engine       Engine      `json:"engine"`
	RenderTimeMs int64       `json:"renderTimeMs"`
	Template     string      `json:"template,omitempty"`
}

// CompositionResult is the output of exactly one backend call.
type CompositionResult struct {
	Buffer   []byte         `json:"-"`
	Metadata RenderMetadata `json:"metadata"`
}

// RequestContext identifies the run an asset belongs to.
type RequestContext struct {
	RequestID string
	Topic     string
	Content   GeneratedContent
	Image     *ImageResult
	CreatedAt time.Time
}

// AssetLocations points at the persisted artifacts of one post.
type AssetLocations struct {
	ImagePath    string `json:"imagePath"`
	CaptionPath  string `json:"captionPath"`
	HashtagsPath string `json:"hashtagsPath"`
	MetadataPath string `json:"metadataPath"`
	SourcePath   string `json:"sourceImagePath,omitempty"`
}

// PostGenerationResult is the outcome of a completed run.
type PostGenerationResult struct {
	ID                     string           `json:"id"`
	RequestID              string           `json:"requestId"`
	Topic                  string           `json:"topic"`
	Content                GeneratedContent `json:"content"`
	Image                  *ImageResult     `json:"image,omitempty"`
	ImageError             string           `json:"imageError,omitempty"`
	Assets                 AssetLocations   `json:"assets"`
	Render                 RenderMetadata   `json:"render"`
	RequestedImageProvider string           `json:"requestedImageProvider,omitempty"`
	EffectiveImageProvider string           `json:"effectiveImageProvider,omitempty"`
	RequestedAt            time.Time        `json:"requestedAt"`
	StartedAt              time.Time        `json:"startedAt"`
	CompletedAt            time.Time        `json:"completedAt"`
}

// ResultSummary is the row appended to generation history.
type ResultSummary struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"requestId"`
	Topic         string    `json:"topic"`
	Status        string    `json:"status"`
	Caption       string    `json:"caption"`
	HashtagCount  int       `json:"hashtagCount"`
	ModelUsed     string    `json:"modelUsed,omitempty"`
	ImageProvider string    `json:"imageProvider,omitempty"`
	ImageError    string    `json:"imageError,omitempty"`
	Engine        Engine    `json:"engine"`
	ImagePath     string    `json:"imagePath,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	RequestedAt   time.Time `json:"requestedAt"`
	CompletedAt   time.Time `json:"completedAt"`
}
