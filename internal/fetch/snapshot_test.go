package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		url    string
		prefix string
	}{
		{"https://www.Distribuidor.com.br/inversores?page=2", "distribuidor-com-br-inversores-"},
		{"https://loja.com/", "loja-com-"},
		{"not a url", "not-a-url-"},
		{"???", "page-"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := Slug(tt.url)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.Len(t, got, len(tt.prefix)+8)
			assert.Equal(t, got, Slug(tt.url))
		})
	}

	assert.NotEqual(t, Slug("https://loja.com/a?page=1"), Slug("https://loja.com/a?page=2"))
	assert.LessOrEqual(t, len(Slug("https://loja.com/"+strings.Repeat("x", 300))), maxSlugLen+9)
}

func wooPage(items int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body class="woocommerce"><ul class="products">`)
	for i := 0; i < items; i++ {
		sb.WriteString(`<li class="product"><h2 class="woocommerce-loop-product__title">Painel LONGi 550W monocristalino half-cell</h2><span class="price">R$ 899,00</span></li>`)
	}
	sb.WriteString(`</ul></body></html>`)
	return sb.String()
}

func TestSavePage(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(wooPage(10)))
	}))
	defer server.Close()

	root := t.TempDir()
	snap, err := SavePage(context.Background(), root, "solarx", server.URL+"/loja", &SaveOptions{Logger: zap.NewNop()})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(snap.Path, "raw/solarx/"))
	assert.True(t, strings.HasSuffix(snap.Path, ".html"))
	assert.Equal(t, PlatformWooCommerce, snap.Platform)
	require.NotNil(t, snap.Selectors)
	assert.Equal(t, "li.product", snap.Selectors.Item)
	assert.False(t, snap.FromCache)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(snap.Path)))
	require.NoError(t, err)
	assert.Equal(t, wooPage(10), string(data))

	t.Run("reuses fresh snapshot", func(t *testing.T) {
		again, err := SavePage(context.Background(), root, "solarx", server.URL+"/loja", &SaveOptions{MaxAge: time.Hour})
		require.NoError(t, err)
		assert.True(t, again.FromCache)
		assert.Equal(t, snap.Path, again.Path)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("rejects path-like source", func(t *testing.T) {
		_, err := SavePage(context.Background(), root, "../x", server.URL, nil)
		assert.Error(t, err)
	})
}

func TestSavePage_BrowserFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer server.Close()

	orig := renderPage
	defer func() { renderPage = orig }()

	t.Run("rendered", func(t *testing.T) {
		renderPage = func(_ context.Context, _, _ string, _ time.Duration, _ *zap.Logger) (string, error) {
			return wooPage(10), nil
		}
		snap, err := SavePage(context.Background(), t.TempDir(), "spa", server.URL, &SaveOptions{AllowBrowser: true})
		require.NoError(t, err)
		assert.True(t, snap.Rendered)
		assert.Equal(t, PlatformWooCommerce, snap.Platform)
	})

	t.Run("render failure keeps HTTP body", func(t *testing.T) {
		renderPage = func(_ context.Context, _, _ string, _ time.Duration, _ *zap.Logger) (string, error) {
			return "", errors.New("no chrome")
		}
		snap, err := SavePage(context.Background(), t.TempDir(), "spa", server.URL, &SaveOptions{AllowBrowser: true})
		require.NoError(t, err)
		assert.False(t, snap.Rendered)
		assert.Equal(t, PlatformUnknown, snap.Platform)
	})
}

func TestSavePage_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	root := t.TempDir()
	_, err := SavePage(context.Background(), root, "x", server.URL, nil)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)

	_, statErr := os.Stat(filepath.Join(root, "raw", "x"))
	assert.True(t, os.IsNotExist(statErr))
}
