// Package branding resolves the logo overlaid on every rendered clip.
package branding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/storage"
)

// Provider materializes the branding logo on local disk for the renderer.
// The fetched file is cached for the life of the process; storage is hit at
// most once.
type Provider struct {
	store    storage.Storage
	key      string
	cacheDir string
	required bool

	mu     sync.Mutex
	cached string
}

// New builds a Provider. When required is false and the logo object is
// missing, LogoPath falls back to a generated placeholder instead of
// failing the job.
func New(store storage.Storage, key, cacheDir string, required bool) *Provider {
	return &Provider{store: store, key: key, cacheDir: cacheDir, required: required}
}

// LogoPath returns the local path of the logo, fetching or generating it on
// first use.
func (p *Provider) LogoPath(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != "" {
		return p.cached, nil
	}

	local := filepath.Join(p.cacheDir, filepath.Base(p.key))
	err := p.store.FetchToLocal(ctx, p.key, local)
	if err == nil {
		p.cached = local
		return local, nil
	}
	if p.required {
		return "", apperror.Wrap(err, apperror.KindNotFound,
			fmt.Sprintf("branding logo %q unavailable", p.key))
	}

	placeholder := filepath.Join(p.cacheDir, "placeholder_logo.png")
	if genErr := writePlaceholder(placeholder); genErr != nil {
		return "", apperror.Wrap(genErr, apperror.KindInternal, "generate placeholder logo")
	}
	p.cached = placeholder
	return placeholder, nil
}

// writePlaceholder renders a plain wordmark so renders still carry a mark
// in environments without the real asset.
func writePlaceholder(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	const w, h = 400, 150
	dc := gg.NewContext(w, h)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()
	dc.SetRGBA(1, 1, 1, 0.9)
	dc.DrawRoundedRectangle(4, 4, w-8, h-8, 16)
	dc.SetLineWidth(6)
	dc.Stroke()
	dc.SetRGBA(1, 1, 1, 0.9)
	dc.DrawStringAnchored("reelpress", w/2, h/2, 0.5, 0.5)
	return dc.SavePNG(path)
}
