// Package ingestion reads distributor dumps (tables, JSON, saved HTML pages) into RawProduct
// records. Adapters only decode and trim; every interpretation happens in later stages.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const stage = "ingest"

// Adapter reads one input file. Records are handed to emit as they are parsed; a record that
// cannot be parsed goes to reject and the stream continues. The returned error is reserved for
// failures that affect the whole file.
type Adapter interface {
	Name() string
	Read(ctx context.Context, path string, emit func(types.RawProduct), reject func(*InputFormatError)) error
}

// NewAdapter returns the adapter for a source's adapter_type.
func NewAdapter(source config.Source) (Adapter, error) {
	switch source.AdapterType {
	case config.AdapterCSV:
		return &TabularAdapter{source: source}, nil
	case config.AdapterTSV:
		return &TabularAdapter{source: source, delimiter: '\t'}, nil
	case config.AdapterXLSX:
		return &TabularAdapter{source: source, sheet: true}, nil
	case config.AdapterJSON:
		return &JSONAdapter{source: source}, nil
	case config.AdapterHTML:
		return &HTMLAdapter{source: source}, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q for source %s", source.AdapterType, source.Name)
	}
}

// extensions accepted when an input path names a directory.
var extensions = map[string][]string{
	config.AdapterCSV:  {".csv", ".txt"},
	config.AdapterTSV:  {".tsv", ".txt"},
	config.AdapterXLSX: {".xlsx"},
	config.AdapterJSON: {".json"},
	config.AdapterHTML: {".html", ".htm"},
}

// Result is the output of Ingest.
type Result struct {
	Products []types.RawProduct
	Files    []FileMetadata
}

// Ingester runs the adapters of the configured sources.
type Ingester struct {
	root    string
	workers int
	issues  *report.Collector
	logger  *zap.Logger
}

// NewIngester creates an ingester rooted at the catalog root.
func NewIngester(root string, workers int, issues *report.Collector, logger *zap.Logger) *Ingester {
	if workers < 1 {
		workers = 1
	}
	return &Ingester{root: root, workers: workers, issues: issues, logger: logging.OrNop(logger).Named(stage)}
}

type fileJob struct {
	source config.Source
	abs    string
	rel    string
}

// Ingest reads every file of every source. Files are read in parallel; the output lists
// records in source declaration order, then file path order, then row order.
func (in *Ingester) Ingest(ctx context.Context, sources []config.Source) (*Result, error) {
	var jobs []fileJob
	for _, src := range sources {
		files, err := in.resolveInputs(src)
		if err != nil {
			in.issues.Addf(types.KindInputFormat, stage, src.InputPath, 0, "", "", err.Error())
			in.logger.Warn("source has no readable input", zap.String("source", src.Name), zap.Error(err))
			continue
		}
		for _, f := range files {
			rel, relErr := filepath.Rel(in.root, f)
			if relErr != nil {
				rel = f
			}
			jobs = append(jobs, fileJob{source: src, abs: f, rel: filepath.ToSlash(rel)})
		}
	}

	products := make([][]types.RawProduct, len(jobs))
	metas := make([]*FileMetadata, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, meta := in.readFile(gctx, job)
			products[i] = recs
			metas[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion canceled: %w", err)
	}

	res := &Result{}
	for i := range jobs {
		res.Products = append(res.Products, products[i]...)
		if metas[i] != nil {
			res.Files = append(res.Files, *metas[i])
		}
	}
	in.logger.Info("ingested",
		zap.Int("files", len(res.Files)),
		zap.Int("records", len(res.Products)))
	return res, nil
}

func (in *Ingester) readFile(ctx context.Context, job fileJob) ([]types.RawProduct, *FileMetadata) {
	log := in.logger.With(zap.String("source", job.source.Name), zap.String("source_file", job.rel))

	meta, err := NewFileMetadata(job.source.Name, job.abs, job.rel)
	if err != nil {
		in.issues.Addf(types.KindInputFormat, stage, job.rel, 0, "", "", err.Error())
		return nil, nil
	}
	meta.Adapter = job.source.AdapterType

	adapter, err := NewAdapter(job.source)
	if err != nil {
		in.issues.Addf(types.KindInputFormat, stage, job.rel, 0, "", "", err.Error())
		return nil, meta
	}

	var out []types.RawProduct
	emit := func(p types.RawProduct) {
		p.SourceName = job.source.Name
		p.SourceFile = job.rel
		p.ObservedAt = meta.ObservedAt
		if p.SourceID == "" {
			p.SourceID = fmt.Sprintf("%s#%d", filepath.Base(job.rel), p.Row)
		}
		out = append(out, p)
	}
	reject := func(e *InputFormatError) {
		e.SourceFile = job.rel
		meta.Rejected++
		in.issues.Addf(types.KindInputFormat, stage, job.rel, e.Row, "", "", e.Error())
		log.Debug("record dropped", zap.Int("row", e.Row), zap.Error(e))
	}

	if err := adapter.Read(ctx, job.abs, emit, reject); err != nil {
		var ife *InputFormatError
		if !errors.As(err, &ife) {
			ife = &InputFormatError{Message: "unreadable file", Cause: err}
		}
		ife.SourceFile = job.rel
		in.issues.Addf(types.KindInputFormat, stage, job.rel, ife.Row, "", "", ife.Error())
		log.Warn("file skipped", zap.Error(err))
	}
	meta.Records = len(out)
	return out, meta
}

// resolveInputs expands a source's input_path (file, directory or glob) into sorted files.
func (in *Ingester) resolveInputs(src config.Source) ([]string, error) {
	p := src.InputPath
	if !filepath.IsAbs(p) {
		p = filepath.Join(in.root, p)
	}

	if strings.ContainsAny(src.InputPath, "*?[") {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid input glob %q: %w", src.InputPath, err)
		}
		sort.Strings(matches)
		return matches, nil
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("input path %q: %w", src.InputPath, err)
	}
	if !info.IsDir() {
		return []string{p}, nil
	}

	exts := extensions[src.AdapterType]
	var files []string
	err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Image folders live next to the feeds.
			if path != p && strings.EqualFold(d.Name(), "images") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", src.InputPath, err)
	}
	sort.Strings(files)
	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
