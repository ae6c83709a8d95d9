package compose

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"postforge/render"
)

// Fetcher loads a remote image. raster.HTTPFetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// WithFetcher makes the engine download every http(s) image in a tree
// before rendering and hand backends data URLs instead. Backends then never
// dial out on their own, so the fetcher's client decides which hosts are
// reachable.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// inlineImages rewrites remote image sources in tree to data URLs. Each
// distinct source is fetched once.
func (e *Engine) inlineImages(ctx context.Context, tree *render.Node) error {
	if e.fetcher == nil {
		return nil
	}
	inlined := map[string]string{}
	var err error
	render.Walk(tree, func(n *render.Node) bool {
		if err != nil {
			return false
		}
		if n.Kind != render.KindImage || !isRemote(n.Src) {
			return true
		}
		if data, ok := inlined[n.Src]; ok {
			n.Src = data
			return true
		}
		var body []byte
		body, err = e.fetcher.Fetch(ctx, n.Src)
		if err != nil {
			err = fmt.Errorf("fetch image: %w", err)
			return false
		}
		data := "data:" + http.DetectContentType(body) + ";base64," + base64.StdEncoding.EncodeToString(body)
		inlined[n.Src] = data
		n.Src = data
		return true
	})
	return err
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
