package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
)

// maxSlugLen bounds the readable part of a snapshot file name.
const maxSlugLen = 80

// renderPage is swapped out in tests.
var renderPage = WithBrowser

// SaveOptions configures SavePage.
type SaveOptions struct {
	Fetch *Options
	// AllowBrowser renders the page with headless Chrome when the HTTP body looks empty.
	AllowBrowser bool
	// WaitFor is the selector the browser waits for before capturing the page.
	WaitFor string
	// MaxAge reuses an existing snapshot younger than this. Zero always downloads.
	MaxAge time.Duration
	Logger *zap.Logger
}

// Snapshot describes a page saved under raw/<source>/.
type Snapshot struct {
	URL       string
	Path      string // relative to the catalog root
	Platform  Platform
	Selectors *config.HTMLSelectors // suggested html_selectors for the source
	Bytes     int
	Rendered  bool // captured with the headless browser
	FromCache bool
}

// SavePage downloads url and writes it to raw/<source>/<slug>.html under root. The write is
// atomic so a concurrent ingestion never reads a truncated page.
func SavePage(ctx context.Context, root, source, urlStr string, opts *SaveOptions) (*Snapshot, error) {
	if opts == nil {
		opts = &SaveOptions{}
	}
	logger := logging.OrNop(opts.Logger).With(zap.String("source", source), zap.String("url", urlStr))
	if source == "" || strings.ContainsAny(source, `/\`) || source == "." || source == ".." {
		return nil, fmt.Errorf("invalid source name %q", source)
	}

	rel := filepath.ToSlash(filepath.Join("raw", source, Slug(urlStr)+".html"))
	abs := filepath.Join(root, filepath.FromSlash(rel))

	if opts.MaxAge > 0 {
		if info, err := os.Stat(abs); err == nil && time.Since(info.ModTime()) < opts.MaxAge {
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, fmt.Errorf("failed to read snapshot %s: %w", rel, err)
			}
			platform := DetectPlatform(urlStr, string(data))
			logger.Debug("reusing snapshot", zap.String("path", rel))
			return &Snapshot{
				URL:       urlStr,
				Path:      rel,
				Platform:  platform,
				Selectors: PlatformSelectors(platform),
				Bytes:     len(data),
				FromCache: true,
			}, nil
		}
	}

	result, err := URL(ctx, urlStr, opts.Fetch)
	if err != nil {
		return nil, err
	}
	html := result.HTML
	platform := DetectPlatform(urlStr, html)

	rendered := false
	text, _ := ExtractMainText(html, CatalogSelectors(), PlatformNoiseSelectors(platform)...)
	if opts.AllowBrowser && ShouldUseBrowser(text) {
		timeout := DefaultTimeout
		if opts.Fetch != nil && opts.Fetch.Timeout > 0 {
			timeout = opts.Fetch.Timeout
		}
		renderedHTML, err := renderPage(ctx, urlStr, opts.WaitFor, timeout, logger)
		if err != nil {
			logger.Warn("browser rendering failed, keeping HTTP body", zap.Error(err))
		} else {
			html = renderedHTML
			rendered = true
			platform = DetectPlatform(urlStr, html)
		}
	}

	if err := fsutil.WriteFileAtomic(abs, []byte(html), 0644); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	logger.Info("saved page",
		zap.String("path", rel),
		zap.String("platform", string(platform)),
		zap.Bool("rendered", rendered))

	return &Snapshot{
		URL:       urlStr,
		Path:      rel,
		Platform:  platform,
		Selectors: PlatformSelectors(platform),
		Bytes:     len(html),
		Rendered:  rendered,
	}, nil
}

// Slug derives a stable file name from a URL: host and path in lower case with runs of other
// characters turned into '-', followed by a short hash of the full URL.
func Slug(urlStr string) string {
	base := urlStr
	if u, err := url.Parse(urlStr); err == nil && u.Host != "" {
		base = u.Host + u.Path
	}
	base = strings.TrimPrefix(strings.ToLower(base), "www.")

	var sb strings.Builder
	dash := false
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}

	sum := sha256.Sum256([]byte(urlStr))
	if slug == "" {
		return "page-" + hex.EncodeToString(sum[:4])
	}
	return slug + "-" + hex.EncodeToString(sum[:4])
}
