package imagestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const stage = "link-images"

var contentHashRef = regexp.MustCompile(`^[0-9a-f]{64}$`)

// roleRank orders a product's images: primary first, gallery, then component shots.
var roleRank = map[string]int{
	types.RolePrimary:           0,
	types.RoleGallery:           1,
	types.RoleComponentPanel:    2,
	types.RoleComponentInverter: 3,
}

// Stats summarizes one Link call.
type Stats struct {
	Located int            `json:"located"`
	Misses  int            `json:"misses"`
	Hashes  int            `json:"unique_hashes"`
	Methods map[string]int `json:"methods"`
	Writes  int64          `json:"writes"`
}

// Linker attaches content-addressed image assets to consolidated products.
type Linker struct {
	cfg      *config.Config
	store    *Store
	locators map[string]*Locator
	order    []string
	workers  int
	issues   *report.Collector
	logger   *zap.Logger
}

// NewLinker indexes the image folders of every configured source: the source's images_path
// and raw/<source>/images under the catalog root.
func NewLinker(cfg *config.Config, store *Store, workers int, issues *report.Collector, logger *zap.Logger) (*Linker, error) {
	if workers < 1 {
		workers = 1
	}
	l := &Linker{
		cfg:      cfg,
		store:    store,
		locators: make(map[string]*Locator, len(cfg.Sources)),
		workers:  workers,
		issues:   issues,
		logger:   logging.OrNop(logger).Named(stage),
	}
	for _, src := range cfg.Sources {
		dirs := []string{filepath.Join(cfg.CatalogRoot, "raw", src.Name, "images")}
		if src.ImagesPath != "" {
			dirs = append([]string{cfg.Path(src.ImagesPath)}, dirs...)
		}
		loc, err := NewLocator(cfg.CatalogRoot, dirs, cfg.Path(src.AliasesPath))
		if err != nil {
			return nil, fmt.Errorf("failed to index images for source %s: %w", src.Name, err)
		}
		l.locators[src.Name] = loc
		l.order = append(l.order, src.Name)
		l.logger.Debug("indexed images", zap.String("source", src.Name), zap.Int("files", loc.Len()))
	}
	return l, nil
}

type located struct {
	product int
	ref     types.ImageRef
	path    string
	hash    string
}

// Link resolves the image_refs of every product and replaces its images. Products are
// modified in place. A reference that cannot be located yields an ImageMissError issue and the
// product keeps its image_refs. Only canceled contexts and store write failures are returned.
func (l *Linker) Link(ctx context.Context, products []types.ConsolidatedProduct) (*Stats, error) {
	stats := &Stats{Methods: make(map[string]int)}
	writesBefore := l.store.Writes()

	// Locate and hash sequentially so the first product (in catalog order) referencing a hash
	// decides its encoder policy.
	var hits []located
	policies := make(map[string]string)
	srcs := make(map[string]string)
	var hashOrder []string
	hashCache := make(map[string]string)

	for i := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &products[i]
		for _, ref := range p.ImageRefs {
			path, hash, method, err := l.locate(p, ref.Ref, hashCache)
			if err != nil {
				stats.Misses++
				l.issues.Addf(types.KindImageMiss, stage, sourceFileOf(p), 0, "image_refs", p.ID, err.Error())
				continue
			}
			stats.Located++
			stats.Methods[method]++
			hits = append(hits, located{product: i, ref: ref, path: path, hash: hash})
			if _, ok := policies[hash]; !ok {
				policies[hash] = l.cfg.EncoderFor(p.Category)
				srcs[hash] = path
				hashOrder = append(hashOrder, hash)
			}
		}
	}
	stats.Hashes = len(hashOrder)

	manifests := make([]*Manifest, len(hashOrder))
	failed := make([]error, len(hashOrder))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, hash := range hashOrder {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := l.store.Ensure(srcs[hash], hash, policies[hash])
			if err != nil {
				if errors.Is(err, ErrUndecodable) {
					failed[i] = err
					return nil
				}
				return err
			}
			manifests[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("image linking failed: %w", err)
	}

	byHash := make(map[string]*Manifest, len(hashOrder))
	for i, hash := range hashOrder {
		if failed[i] != nil {
			continue
		}
		byHash[hash] = manifests[i]
	}

	assets := make(map[int][]types.ImageAsset)
	seen := make(map[int]map[string]bool)
	for _, h := range hits {
		m, ok := byHash[h.hash]
		if !ok {
			p := &products[h.product]
			stats.Misses++
			l.issues.Addf(types.KindImageMiss, stage, sourceFileOf(p), 0, "image_refs", p.ID,
				fmt.Sprintf("image %q is not a decodable image", h.ref.Ref))
			continue
		}
		if seen[h.product] == nil {
			seen[h.product] = make(map[string]bool)
		}
		if seen[h.product][h.hash] {
			continue
		}
		seen[h.product][h.hash] = true
		assets[h.product] = append(assets[h.product], m.Asset(h.ref.Role, h.ref.Ref))
	}

	for i := range products {
		products[i].Images = assignRoles(assets[i])
	}

	stats.Writes = l.store.Writes() - writesBefore
	l.logger.Info("linked images",
		zap.Int("located", stats.Located),
		zap.Int("misses", stats.Misses),
		zap.Int("unique_hashes", stats.Hashes),
		zap.Int64("writes", stats.Writes))
	return stats, nil
}

// locate tries the locators of the product's sources in provenance order, then every other
// source. A 64-hex reference is also looked up directly in the store.
func (l *Linker) locate(p *types.ConsolidatedProduct, ref string, cache map[string]string) (string, string, string, error) {
	if contentHashRef.MatchString(ref) {
		if m, ok := l.store.Lookup(ref); ok {
			if orig, ok := m.Variants[types.VariantOriginal]; ok {
				return filepath.Join(l.cfg.CatalogRoot, filepath.FromSlash(orig.Path)), ref, "content_hash", nil
			}
		}
	}

	var tried []string
	try := func(name string) (string, string, bool) {
		loc, ok := l.locators[name]
		if !ok {
			return "", "", false
		}
		tried = append(tried, name)
		path, method, ok := loc.Locate(ref)
		return path, method, ok
	}

	visited := make(map[string]bool)
	candidates := make([]string, 0, len(l.order))
	for _, e := range p.Provenance {
		if !visited[e.SourceName] {
			visited[e.SourceName] = true
			candidates = append(candidates, e.SourceName)
		}
	}
	for _, name := range l.order {
		if !visited[name] {
			visited[name] = true
			candidates = append(candidates, name)
		}
	}

	for _, name := range candidates {
		path, method, ok := try(name)
		if !ok {
			continue
		}
		hash, cached := cache[path]
		if !cached {
			var err error
			hash, err = HashFile(path)
			if err != nil {
				return "", "", "", fmt.Errorf("cannot read %s: %w", path, err)
			}
			cache[path] = hash
		}
		return path, hash, method, nil
	}
	return "", "", "", &MissError{Ref: ref, Sources: tried}
}

// assignRoles keeps declared roles, makes the first undeclared image primary and the rest
// gallery, then orders the images by role.
func assignRoles(assets []types.ImageAsset) []types.ImageAsset {
	if len(assets) == 0 {
		return []types.ImageAsset{}
	}
	hasPrimary := false
	for _, a := range assets {
		if a.Role == types.RolePrimary {
			hasPrimary = true
		}
	}
	for i := range assets {
		if assets[i].Role != "" {
			continue
		}
		if !hasPrimary {
			assets[i].Role = types.RolePrimary
			hasPrimary = true
			continue
		}
		assets[i].Role = types.RoleGallery
	}
	sort.SliceStable(assets, func(i, j int) bool {
		return rank(assets[i].Role) < rank(assets[j].Role)
	})
	return assets
}

func rank(role string) int {
	if r, ok := roleRank[role]; ok {
		return r
	}
	return len(roleRank)
}

func sourceFileOf(p *types.ConsolidatedProduct) string {
	if len(p.Provenance) == 0 {
		return ""
	}
	return p.Provenance[0].SourceFile
}
