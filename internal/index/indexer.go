// Package index publishes the unified catalog: per-category product files, quarantine files,
// the master index and the integrity report, plus the optional vector export.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/types"
	"github.com/yshsolar/catalog-pipeline/internal/validation"
)

// Output file names under unified/
const (
	UnifiedDir      = "unified"
	QuarantineDir   = "quarantined"
	MasterIndexFile = "master_index.json"
	ReportFile      = "integrity_report.json"
)

// Output is a fully rendered unified tree, not yet on disk.
type Output struct {
	// Files maps slash-separated paths relative to unified/ to their content.
	Files  map[string][]byte
	Index  types.MasterIndex
	Report types.IntegrityReport
}

// Paths returns the file paths of the output in sorted order.
func (o *Output) Paths() []string {
	paths := make([]string, 0, len(o.Files))
	for p := range o.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Indexer renders and publishes the unified tree under a catalog root.
type Indexer struct {
	root    string
	version string
	hashes  map[string]string
	logger  *zap.Logger
}

// NewIndexer returns an indexer. hashes are the schema hashes recorded in the master index.
func NewIndexer(root, version string, hashes map[string]string, logger *zap.Logger) *Indexer {
	return &Indexer{root: root, version: version, hashes: hashes, logger: logging.OrNop(logger).Named("index")}
}

// Build renders every output file in memory. Valid products go to <category>.json; quarantined
// and rejected products go to quarantined/<category>.json and are listed in the master index.
func (ix *Indexer) Build(products []types.ConsolidatedProduct, issues []types.Issue, sources []string, generatedAt string) (*Output, error) {
	valid := make(map[types.Category][]types.ConsolidatedProduct)
	held := make(map[types.Category][]types.ConsolidatedProduct)
	for i := range products {
		p := products[i]
		validation.NormalizeContainers(&p)
		if p.Validation.Status == types.StatusValid {
			valid[p.Category] = append(valid[p.Category], p)
		} else {
			held[p.Category] = append(held[p.Category], p)
		}
	}

	out := &Output{Files: make(map[string][]byte)}
	idx := types.MasterIndex{
		Version:      ix.version,
		GeneratedAt:  generatedAt,
		SchemaHashes: ix.hashes,
		Categories:   make(map[string]int),
		Sources:      sortedUnique(sources),
		Quarantined:  make(map[string][]string),
	}
	if idx.SchemaHashes == nil {
		idx.SchemaHashes = map[string]string{}
	}

	for _, category := range types.AllCategories() {
		if list := valid[category]; len(list) > 0 {
			SortProducts(list)
			name := string(category) + ".json"
			if err := out.add(name, list); err != nil {
				return nil, err
			}
			idx.Categories[string(category)] = len(list)
		}
		if list := held[category]; len(list) > 0 {
			SortProducts(list)
			if err := out.add(QuarantineDir+"/"+string(category)+".json", list); err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(list))
			for _, p := range list {
				ids = append(ids, p.ID)
			}
			sort.Strings(ids)
			idx.Quarantined[string(category)] = ids
		}
	}
	idx.Files = out.Paths()

	out.Report = validation.BuildIntegrityReport(products, issues, generatedAt)
	if err := out.add(ReportFile, out.Report); err != nil {
		return nil, err
	}
	out.Index = idx
	if err := out.add(MasterIndexFile, idx); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Output) add(name string, v any) error {
	data, err := fsutil.MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	o.Files[name] = data
	return nil
}

// Publish writes out into unified.staging-<runID>/ and swaps it into unified/. On any error
// the staging directory is removed and unified/ is left untouched.
func (ix *Indexer) Publish(out *Output, runID string) (err error) {
	final := filepath.Join(ix.root, UnifiedDir)
	staging := filepath.Join(ix.root, UnifiedDir+".staging-"+runID)
	previous := filepath.Join(ix.root, UnifiedDir+".previous-"+runID)

	if err := os.RemoveAll(staging); err != nil {
		return &IOFailure{Path: staging, Message: "cannot clear staging directory", Cause: err}
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	for _, name := range out.Paths() {
		path := filepath.Join(staging, filepath.FromSlash(name))
		if werr := fsutil.WriteFileAtomic(path, out.Files[name], 0644); werr != nil {
			return &IOFailure{Path: path, Message: "cannot write output", Cause: werr}
		}
	}

	hadPrevious := true
	if rerr := os.Rename(final, previous); rerr != nil {
		if !errors.Is(rerr, fs.ErrNotExist) {
			return &IOFailure{Path: final, Message: "cannot move previous output aside", Cause: rerr}
		}
		hadPrevious = false
	}
	if rerr := os.Rename(staging, final); rerr != nil {
		if hadPrevious {
			_ = os.Rename(previous, final)
		}
		return &IOFailure{Path: final, Message: "cannot swap staging directory into place", Cause: rerr}
	}
	if hadPrevious {
		if rerr := os.RemoveAll(previous); rerr != nil {
			ix.logger.Warn("failed to remove previous output", zap.String("path", previous), zap.Error(rerr))
		}
	}

	ix.logger.Info("published unified catalog",
		zap.String("dir", final),
		zap.Int("files", len(out.Files)))
	return nil
}

// SortProducts orders products by manufacturer, model and id.
func SortProducts(products []types.ConsolidatedProduct) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := &products[i], &products[j]
		if ma, mb := sortKey(a.Manufacturer), sortKey(b.Manufacturer); ma != mb {
			return ma < mb
		}
		if ma, mb := sortKey(a.Model), sortKey(b.Model); ma != mb {
			return ma < mb
		}
		return a.ID < b.ID
	})
}

func sortKey(s *string) string {
	return strings.ToLower(types.Str(s))
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
