package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/index"
	"github.com/yshsolar/catalog-pipeline/internal/pipeline/steps"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	writeFile(t, path, data)
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// catalogFixture lays out two distributors that both carry the Growatt MIN 5000TL-X, with the
// same photo under different names, plus an inverter whose power cannot be derived.
func catalogFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	photo := pngBytes(t, 640, 480, color.RGBA{G: 180, A: 255})
	writeFile(t, filepath.Join(root, "raw", "x", "images", "MIN-5000TL-X.png"), photo)
	writeFile(t, filepath.Join(root, "raw", "y", "images", "growatt_min5000_foto.png"), photo)

	writeJSON(t, filepath.Join(root, "raw", "x", "export.json"), map[string]any{
		"products": []map[string]any{
			{"id": "x1", "name": "Inversor 5kW Growatt MIN 5000TL-X", "price": "R$ 4.500,00", "image": "MIN-5000TL-X.png"},
			{"id": "x2", "name": "Inversor Deye 220/127V trifásico", "price": "R$ 9.990,00"},
		},
	})
	writeJSON(t, filepath.Join(root, "raw", "y", "y_inverters.json"), []map[string]any{
		{"id": "y7", "manufacturer": "Growatt", "model": "MIN 5000TL-X", "power_kw": 5.0, "efficiency": "98.4%", "imagem": "growatt_min5000_foto.png"},
	})

	cfg := config.Defaults(root)
	cfg.APIKey = ""
	cfg.DatabaseURL = ""
	cfg.Sources = []config.Source{
		{Name: "x", Code: "XXX", AdapterType: config.AdapterJSON, InputPath: "raw/x"},
		{Name: "y", Code: "YYY", AdapterType: config.AdapterJSON, InputPath: "raw/y"},
	}
	return &cfg
}

func newRun(t *testing.T, cfg *config.Config, mutate func(*RunOptions)) *Run {
	t.Helper()
	opts := RunOptions{Config: cfg, Workers: 2, Out: &bytes.Buffer{}, Now: fixedNow}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewRun(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func readProducts(t *testing.T, path string) []types.ConsolidatedProduct {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var products []types.ConsolidatedProduct
	require.NoError(t, json.Unmarshal(data, &products))
	return products
}

func unifiedFiles(t *testing.T, root string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	dir := filepath.Join(root, index.UnifiedDir)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		files[filepath.ToSlash(rel)] = data
		return err
	})
	require.NoError(t, err)
	return files
}

func TestRunAll_EndToEnd(t *testing.T) {
	cfg := catalogFixture(t)
	r := newRun(t, cfg, nil)

	summary, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Products)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 1, summary.Quarantined)
	assert.Zero(t, summary.Rejected)
	assert.True(t, summary.Published)
	assert.True(t, summary.Held())

	root := cfg.CatalogRoot
	inverters := readProducts(t, filepath.Join(root, "unified", "inverter.json"))
	require.Len(t, inverters, 1)
	p := inverters[0]

	t.Run("cross-source merge", func(t *testing.T) {
		assert.Equal(t, "XXX-INV-5000W-GROWATT-BRZ-NONE-001", p.ID)
		require.Len(t, p.Provenance, 2)
		assert.Equal(t, "x", p.Provenance[0].SourceName)
		assert.Equal(t, "raw/x/export.json", p.Provenance[0].SourceFile)
		assert.Equal(t, "y", p.FieldSources["manufacturer"])
		require.NotNil(t, p.TechnicalSpecs.PowerKW)
		assert.Equal(t, 5.0, *p.TechnicalSpecs.PowerKW)
		require.Len(t, p.Pricing, 1)
		require.NotNil(t, p.Pricing[0].AmountMinorUnits)
		assert.Equal(t, int64(450000), *p.Pricing[0].AmountMinorUnits)
		assert.Equal(t, types.StatusValid, p.Validation.Status)
	})

	t.Run("image dedup", func(t *testing.T) {
		require.NotEmpty(t, p.Images)
		hashes := map[string]bool{}
		for _, img := range p.Images {
			hashes[img.ContentHash] = true
		}
		assert.Len(t, hashes, 1, "both photos carry the same bytes")
		originals, err := filepath.Glob(filepath.Join(root, cfg.ImageStorePath(), "*", "*", "original.*"))
		require.NoError(t, err)
		assert.Len(t, originals, 1)
	})

	t.Run("quarantine on missing power", func(t *testing.T) {
		held := readProducts(t, filepath.Join(root, "unified", "quarantined", "inverter.json"))
		require.Len(t, held, 1)
		assert.Equal(t, types.StatusQuarantined, held[0].Validation.Status)
		assert.Nil(t, held[0].TechnicalSpecs.PowerKW)
		require.NotNil(t, held[0].TechnicalSpecs.Voltage)
		assert.Equal(t, "220/127V", *held[0].TechnicalSpecs.Voltage)

		var paths []string
		for _, e := range held[0].Validation.Errors {
			paths = append(paths, e.Path)
		}
		assert.Contains(t, paths, "/technical_specs/power_kw")
	})

	t.Run("master index", func(t *testing.T) {
		var idx types.MasterIndex
		data, err := os.ReadFile(filepath.Join(root, "unified", index.MasterIndexFile))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &idx))
		assert.Equal(t, map[string]int{"inverter": 1}, idx.Categories)
		assert.Equal(t, []string{"x", "y"}, idx.Sources)
		assert.Equal(t, []string{"inverter.json", "quarantined/inverter.json"}, idx.Files)
		assert.Len(t, idx.Quarantined["inverter"], 1)
		assert.Equal(t, "2024-06-01T12:00:00Z", idx.GeneratedAt)
		assert.Contains(t, idx.SchemaHashes, "common")
	})

	t.Run("snapshots", func(t *testing.T) {
		for _, def := range steps.Ordered() {
			path := steps.SnapshotPath(root, def.Name)
			if def.Snapshot {
				assert.FileExists(t, path)
			} else {
				assert.NoFileExists(t, path)
			}
		}
	})
}

func TestRunAll_Idempotent(t *testing.T) {
	cfg := catalogFixture(t)
	_, err := newRun(t, cfg, nil).RunAll(context.Background())
	require.NoError(t, err)
	first := unifiedFiles(t, cfg.CatalogRoot)

	_, err = newRun(t, cfg, nil).RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, unifiedFiles(t, cfg.CatalogRoot))

	entries, err := os.ReadDir(cfg.CatalogRoot)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotRegexp(t, `^unified\.(staging|previous)-`, e.Name(), "publish leaves no side directories")
	}

	_, stats, err := newRun(t, cfg, nil).LinkImages(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Writes)
}

func TestRunAll_StrictRejects(t *testing.T) {
	cfg := catalogFixture(t)
	summary, err := newRun(t, cfg, func(o *RunOptions) { o.Strict = true }).RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Rejected)
	assert.Zero(t, summary.Quarantined)
	assert.True(t, summary.Held())

	held := readProducts(t, filepath.Join(cfg.CatalogRoot, "unified", "quarantined", "inverter.json"))
	require.Len(t, held, 1)
	assert.Equal(t, types.StatusRejected, held[0].Validation.Status)
}

func TestRunAll_DryRunWritesNothing(t *testing.T) {
	cfg := catalogFixture(t)
	before := listTree(t, cfg.CatalogRoot)
	summary, err := newRun(t, cfg, func(o *RunOptions) { o.DryRun = true }).RunAll(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Published)
	assert.Equal(t, 2, summary.Products)
	assert.NoDirExists(t, filepath.Join(cfg.CatalogRoot, "unified"))
	assert.NoDirExists(t, filepath.Join(cfg.CatalogRoot, steps.WorkDir))
	assert.NoDirExists(t, cfg.ImageStorePath())
	assert.Equal(t, before, listTree(t, cfg.CatalogRoot))
}

// listTree returns every path under root, relative to it.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	return paths
}

func TestRunAll_AliasResolution(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "raw", "p", "paineis.json"), []map[string]any{
		{"Fabricante": "LON GI", "Modelo": "LR5-72HTH-550M", "Potência (W)": "550", "preco": "R$ 890,00"},
		{"Fabricante": "LONGi", "Modelo": "lr5-72hth-550m", "Potência (W)": "550 W", "preco": "R$ 870,00"},
	})
	cfg := config.Defaults(root)
	cfg.APIKey = ""
	cfg.Sources = []config.Source{{Name: "panels_feed", Code: "PNF", AdapterType: config.AdapterJSON, InputPath: "raw/p", Category: "panel"}}

	summary, err := newRun(t, &cfg, nil).RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Products, "aliased brands collapse into one product")

	panels := readProducts(t, filepath.Join(root, "unified", "panel.json"))
	require.Len(t, panels, 1)
	assert.Equal(t, "LONGi", types.Str(panels[0].Manufacturer))
	require.NotNil(t, panels[0].TechnicalSpecs.PowerW)
	assert.Equal(t, 550.0, *panels[0].TechnicalSpecs.PowerW)
	assert.Len(t, panels[0].Pricing, 2)
}

func TestStandaloneStages(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		cfg := catalogFixture(t)
		_, err := newRun(t, cfg, nil).Normalize(context.Background(), nil)
		var depErr *steps.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, []string{steps.Consolidate}, depErr.MissingDependencies)
	})

	t.Run("chained through snapshots", func(t *testing.T) {
		cfg := catalogFixture(t)
		ctx := context.Background()

		_, err := newRun(t, cfg, nil).Consolidate(ctx)
		require.NoError(t, err)
		_, err = newRun(t, cfg, nil).Normalize(ctx, nil)
		require.NoError(t, err)
		_, _, err = newRun(t, cfg, nil).LinkImages(ctx, nil)
		require.NoError(t, err)
		_, _, err = newRun(t, cfg, nil).Validate(ctx, nil)
		require.NoError(t, err)
		summary, err := newRun(t, cfg, nil).Index(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Valid)
		assert.Equal(t, 1, summary.Quarantined)
	})

	t.Run("categories filter", func(t *testing.T) {
		cfg := catalogFixture(t)
		snap, err := newRun(t, cfg, func(o *RunOptions) { o.Categories = []string{"panel"} }).Consolidate(context.Background())
		require.NoError(t, err)
		assert.Empty(t, snap.Products)
	})

	t.Run("sources filter", func(t *testing.T) {
		cfg := catalogFixture(t)
		snap, err := newRun(t, cfg, func(o *RunOptions) { o.Sources = []string{"y"} }).Consolidate(context.Background())
		require.NoError(t, err)
		require.Len(t, snap.Products, 1)
		assert.Equal(t, []string{"y"}, snap.Sources)
		assert.Equal(t, "YYY-INV-5000W-GROWATT-BRZ-NONE-001", snap.Products[0].ID)
	})
}

func TestNewRun_Errors(t *testing.T) {
	cfg := catalogFixture(t)
	tests := []struct {
		name       string
		opts       RunOptions
		wantFilter bool
	}{
		{"no config", RunOptions{}, false},
		{"unknown source", RunOptions{Config: cfg, Sources: []string{"nope"}}, true},
		{"unknown category", RunOptions{Config: cfg, Categories: []string{"rocket"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRun(tt.opts)
			require.Error(t, err)
			var fe *FilterError
			assert.Equal(t, tt.wantFilter, errors.As(err, &fe))
		})
	}
}

// Every generated panel feed, whatever its brands and powers, publishes valid products with
// well-formed ids and the same bytes on a second run.
func TestRunAll_GeneratedPanels(t *testing.T) {
	brands := []string{"LONGi", "Jinko", "Canadian Solar", "Trina", "JA Solar"}
	idPattern := regexp.MustCompile(`^PNF-PNL-[0-9A-Z]+-[^-]+-BRZ-(CERT|NONE)-[0-9]{3,}$`)

	for seed := int64(1); seed <= 3; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			faker := gofakeit.New(seed)
			root := t.TempDir()

			var records []map[string]any
			for i := 0; i < 12; i++ {
				brand := brands[faker.Number(0, len(brands)-1)]
				power := faker.Number(40, 60) * 10
				records = append(records, map[string]any{
					"codigo":     faker.LetterN(2) + faker.DigitN(4),
					"fabricante": brand,
					"modelo":     fmt.Sprintf("%s-%d%s", faker.LetterN(3), power, faker.RandomString([]string{"M", "P", "HC"})),
					"power_w":    power,
					"preco":      fmt.Sprintf("R$ %d,%02d", faker.Number(500, 1500), faker.Number(0, 99)),
				})
			}
			writeJSON(t, filepath.Join(root, "raw", "p", "feed.json"), records)

			cfg := config.Defaults(root)
			cfg.APIKey = ""
			cfg.Sources = []config.Source{{Name: "panels_feed", Code: "PNF", AdapterType: config.AdapterJSON, InputPath: "raw/p", Category: "panel"}}

			summary, err := newRun(t, &cfg, nil).RunAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, summary.Products, summary.Valid)
			assert.NotZero(t, summary.Products)
			first := unifiedFiles(t, root)

			ids := map[string]bool{}
			for _, p := range readProducts(t, filepath.Join(root, "unified", "panel.json")) {
				assert.Regexp(t, idPattern, p.ID)
				assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
				ids[p.ID] = true
				require.NotNil(t, p.TechnicalSpecs.PowerW)
				assert.Positive(t, *p.TechnicalSpecs.PowerW)
			}

			_, err = newRun(t, &cfg, nil).RunAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, first, unifiedFiles(t, root))
		})
	}
}
