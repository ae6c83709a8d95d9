// Package pipeline sequences one post generation: text, then an optional
// image, then composition, then persistence.
//
// Text, composition and persistence failures end the run. An image failure
// is absorbed: the post is composed without an image and the failure is
// reported on the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/imagegen"
	"postforge/logging"
	"postforge/textgen"
)

// TextGenerator produces post text.
type TextGenerator interface {
	Generate(ctx context.Context, req textgen.Request) (*textgen.Result, error)
}

// ImageGenerator produces the post image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, opts imagegen.Options) (*core.ImageResult, error)
}

// Composer renders the final artifact.
type Composer interface {
	Compose(ctx context.Context, content core.GeneratedContent, imageURL string, settings core.CompositionSettings, opts core.RenderOptions) (*core.CompositionResult, error)
}

// AssetStore persists a rendered post.
type AssetStore interface {
	Persist(ctx context.Context, result *core.CompositionResult, rc core.RequestContext) (core.AssetLocations, error)
}

// HistoryRecorder appends run summaries.
type HistoryRecorder interface {
	Append(ctx context.Context, summary core.ResultSummary) error
}

// Settings are the per-deployment defaults applied to every run.
type Settings struct {
	MaxTokens      int
	Temperature    float32
	TextMaxRetries int

	// DefaultImageProvider is reported as the requested provider when the
	// request carries no hint.
	DefaultImageProvider string
	Image                imagegen.Options

	Composition core.CompositionSettings
	Render      core.RenderOptions
}

// Options wires an Orchestrator. Image may be nil when no image provider is
// configured.
type Options struct {
	Text     TextGenerator
	Image    ImageGenerator
	Composer Composer
	Assets   AssetStore
	History  HistoryRecorder
	Settings Settings
	Logger   *logging.Logger

	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs GeneratePost. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	text     TextGenerator
	image    ImageGenerator
	composer Composer
	assets   AssetStore
	history  HistoryRecorder
	settings Settings
	logger   *logging.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Text == nil:
		return nil, errors.New("pipeline: text generator is required")
	case opts.Composer == nil:
		return nil, errors.New("pipeline: composer is required")
	case opts.Assets == nil:
		return nil, errors.New("pipeline: asset store is required")
	case opts.History == nil:
		return nil, errors.New("pipeline: history recorder is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{
		text:     opts.Text,
		image:    opts.Image,
		composer: opts.Composer,
		assets:   opts.Assets,
		history:  opts.History,
		settings: opts.Settings,
		logger:   opts.Logger.Named("pipeline"),
		validate: core.NewValidator(),
		now:      opts.Now,
		newID:    opts.NewID,
	}, nil
}

// run carries the state of one GeneratePost call.
type run struct {
	id        string
	req       core.GenerationRequest
	progress  ProgressFunc
	state     State
	percent   int
	result    *core.PostGenerationResult
	modelUsed string
	logger    *logging.Logger
}

func (r *run) enter(state State, message string) {
	r.state = state
	if p := state.Percentage(); p >= 0 {
		r.percent = p
	}
	r.logger.Debug("state", zap.String("state", string(state)), zap.String("message", message))
	r.progress(state, r.percent, message)
}

// GeneratePost runs the pipeline for req.
func (o *Orchestrator) GeneratePost(ctx context.Context, req core.GenerationRequest) (*core.PostGenerationResult, error) {
	return o.GeneratePostWithProgress(ctx, req, nil)
}

// GeneratePostWithProgress runs the pipeline and reports every transition
// to progress.
func (o *Orchestrator) GeneratePostWithProgress(ctx context.Context, req core.GenerationRequest, progress ProgressFunc) (*core.PostGenerationResult, error) {
	if progress == nil {
		progress = nopProgress
	}
	requestedAt := o.now()
	id := o.newID()
	if req.RequestID == "" {
		req.RequestID = id
	}
	req.Topic = strings.TrimSpace(req.Topic)

	r := &run{
		id:       id,
		req:      req,
		progress: progress,
		logger:   o.logger.With(zap.String("post_id", id), zap.String("request_id", req.RequestID)),
		result: &core.PostGenerationResult{
			ID:          id,
			RequestID:   req.RequestID,
			Topic:       req.Topic,
			RequestedAt: requestedAt,
		},
	}
	r.enter(StateRequested, "request accepted")

	if err := o.validateRequest(req); err != nil {
		return nil, o.fail(ctx, r, err, false)
	}
	r.result.StartedAt = o.now()

	r.enter(StateTextGenerating, "generating caption and hashtags")
	content, err := o.generateText(ctx, r)
	if err != nil {
		return nil, o.fail(ctx, r, err, false)
	}
	r.result.Content = content

	o.generateImage(ctx, r)

	r.enter(StateComposing, "composing post")
	composition, err := o.composer.Compose(ctx, r.result.Content, imageURL(r.result.Image), o.settings.Composition, o.settings.Render)
	if err != nil {
		return nil, o.fail(ctx, r, err, true)
	}
	r.result.Render = composition.Metadata

	r.enter(StatePersisting, "saving assets")
	assets, err := o.assets.Persist(ctx, composition, core.RequestContext{
		RequestID: req.RequestID,
		Topic:     req.Topic,
		Content:   r.result.Content,
		Image:     r.result.Image,
		CreatedAt: r.result.StartedAt,
	})
	if err != nil {
		return nil, o.fail(ctx, r, &core.PersistenceError{Collaborator: "asset store", Err: err}, true)
	}
	r.result.Assets = assets
	r.result.CompletedAt = o.now()

	if err := o.history.Append(ctx, o.summary(r, "completed", nil)); err != nil {
		return nil, o.fail(ctx, r, &core.PersistenceError{Collaborator: "history", Err: err}, false)
	}

	r.enter(StateCompleted, "post ready")
	r.logger.Info("post generated",
		zap.String("model", r.modelUsed),
		zap.String("image_provider", r.result.EffectiveImageProvider),
		zap.Bool("image_degraded", r.result.ImageError != ""),
		zap.String("image_path", assets.ImagePath),
		zap.Duration("elapsed", r.result.CompletedAt.Sub(requestedAt)))
	return r.result, nil
}

func (o *Orchestrator) validateRequest(req core.GenerationRequest) error {
	return core.ValidateStruct(o.validate, req)
}

func (o *Orchestrator) generateText(ctx context.Context, r *run) (core.GeneratedContent, error) {
	system, user := textgen.PostPrompts(r.req.Topic, r.req.WantsImage())
	res, err := o.text.Generate(ctx, textgen.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    o.settings.MaxTokens,
		Temperature:  o.settings.Temperature,
		MaxRetries:   o.settings.TextMaxRetries,
	})
	if err != nil {
		return core.GeneratedContent{}, err
	}
	r.modelUsed = res.ModelUsed

	content := res.Content
	if !r.req.WantsImage() {
		content.VisualPrompt = ""
	}
	return content, nil
}

// generateImage never fails the run. Skips and failures are recorded on
// the result.
func (o *Orchestrator) generateImage(ctx context.Context, r *run) {
	switch {
	case !r.req.WantsImage():
		r.enter(StateImageSkipped, "image not requested")
		return
	case strings.TrimSpace(r.result.Content.VisualPrompt) == "":
		r.enter(StateImageSkipped, "no visual prompt generated")
		return
	case o.image == nil:
		r.enter(StateImageSkipped, "no image provider configured")
		return
	}

	requested := r.req.ImageProvider
	if requested == "" {
		requested = o.settings.DefaultImageProvider
	}
	r.result.RequestedImageProvider = requested

	r.enter(StateImageGenerating, "generating image")
	opts := o.settings.Image
	opts.Provider = r.req.ImageProvider
	img, err := o.image.Generate(ctx, r.result.Content.VisualPrompt, opts)
	if err != nil {
		partial := &core.PartialFailure{Step: "image", Err: err}
		r.result.ImageError = partial.Error()
		r.logger.Warn("image generation failed, continuing without image",
			zap.String("requested_provider", requested),
			zap.Error(err))
		return
	}
	r.result.Image = img
	r.result.EffectiveImageProvider = img.Provider
}

// fail moves r to Failed. When recordHistory is set a failure summary is
// appended on a best-effort basis.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error, recordHistory bool) error {
	step := r.state
	r.result.CompletedAt = o.now()
	r.enter(StateFailed, err.Error())
	r.logger.Error("post generation failed", zap.String("step", string(step)), zap.Error(err))

	if recordHistory {
		if herr := o.history.Append(ctx, o.summary(r, "failed", err)); herr != nil {
			r.logger.Warn("failed to record failure in history", zap.Error(herr))
		}
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (o *Orchestrator) summary(r *run, status string, err error) core.ResultSummary {
	s := core.ResultSummary{
		ID:            r.id,
		RequestID:     r.req.RequestID,
		Topic:         r.req.Topic,
		Status:        status,
		Caption:       r.result.Content.Caption,
		HashtagCount:  len(r.result.Content.Hashtags),
		ModelUsed:     r.modelUsed,
		ImageProvider: r.result.EffectiveImageProvider,
		ImageError:    r.result.ImageError,
		Engine:        o.settings.Render.Engine,
		ImagePath:     r.result.Assets.ImagePath,
		DurationMs:    r.result.CompletedAt.Sub(r.result.RequestedAt).Milliseconds(),
		RequestedAt:   r.result.RequestedAt,
		CompletedAt:   r.result.CompletedAt,
	}
	if err != nil {
		s.ErrorMessage = err.Error()
	}
	return s
}

// imageURL picks the composition source for img. Bytes already in hand win
// over the provider URL, which may expire or be unreachable from the
// renderer. Nil means no image.
func imageURL(img *core.ImageResult) string {
	if img == nil {
		return ""
	}
	if len(img.Data) > 0 {
		contentType := img.ContentType
		if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
			contentType = ""
		}
		return imagegen.DataURL(img.Data, contentType)
	}
	return img.URL
}
