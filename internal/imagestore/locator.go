package imagestore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

// Match methods, in the order they are tried.
const (
	MatchPath      = "path"
	MatchExact     = "exact_stem"
	MatchFolded    = "folded_stem"
	MatchAlias     = "alias"
	MatchSubstring = "substring"
)

// minSubstringLen keeps very short references from matching arbitrary files.
const minSubstringLen = 4

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// Locator finds the physical file behind an image reference within one distributor's folders.
type Locator struct {
	root    string
	exact   map[string]string // stem -> path
	folded  map[string]string // alphanumeric folded stem -> path
	aliases map[string]string // folded code -> file name
	stems   []foldedFile      // sorted for substring search
}

type foldedFile struct {
	stem string
	path string
}

// NewLocator indexes the image files under dirs. Missing directories are skipped. When two
// files share a stem the one whose path sorts first wins.
func NewLocator(root string, dirs []string, aliasCSV string) (*Locator, error) {
	l := &Locator{
		root:    root,
		exact:   make(map[string]string),
		folded:  make(map[string]string),
		aliases: make(map[string]string),
	}

	var files []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(p))] {
				files = append(files, p)
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to index images in %s: %w", dir, err)
		}
	}
	sort.Strings(files)

	for _, f := range files {
		stem := stemOf(filepath.Base(f))
		if _, ok := l.exact[stem]; !ok {
			l.exact[stem] = f
		}
		key := foldStem(stem)
		if key == "" {
			continue
		}
		if _, ok := l.folded[key]; !ok {
			l.folded[key] = f
			l.stems = append(l.stems, foldedFile{stem: key, path: f})
		}
	}
	sort.Slice(l.stems, func(i, j int) bool {
		if len(l.stems[i].stem) != len(l.stems[j].stem) {
			return len(l.stems[i].stem) < len(l.stems[j].stem)
		}
		return l.stems[i].path < l.stems[j].path
	})

	if aliasCSV != "" {
		if err := l.loadAliases(aliasCSV); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// loadAliases reads a "code,filename" table. A header row is tolerated.
func (l *Locator) loadAliases(table string) error {
	f, err := os.Open(table)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open alias table %s: %w", table, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read alias table %s: %w", table, err)
		}
		if len(rec) < 2 {
			continue
		}
		code, file := foldStem(rec[0]), strings.TrimSpace(rec[1])
		if code == "" || file == "" || (code == "code" && strings.EqualFold(file, "filename")) {
			continue
		}
		if _, ok := l.aliases[code]; !ok {
			l.aliases[code] = file
		}
	}
	return nil
}

// Len returns the number of indexed files.
func (l *Locator) Len() int {
	return len(l.exact)
}

// Locate returns the file for ref and the method that found it. Methods are tried in order and
// the first hit wins.
func (l *Locator) Locate(ref string) (string, string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", false
	}

	if !isURL(ref) && l.root != "" {
		candidate := ref
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(l.root, filepath.FromSlash(ref))
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, MatchPath, true
		}
	}

	stem := stemOf(refBase(ref))
	if p, ok := l.exact[stem]; ok {
		return p, MatchExact, true
	}
	folded := foldStem(stem)
	if folded == "" {
		return "", "", false
	}
	if p, ok := l.folded[folded]; ok {
		return p, MatchFolded, true
	}
	if file, ok := l.aliases[folded]; ok {
		aliasStem := stemOf(file)
		if p, ok := l.exact[aliasStem]; ok {
			return p, MatchAlias, true
		}
		if p, ok := l.folded[foldStem(aliasStem)]; ok {
			return p, MatchAlias, true
		}
	}
	if len(folded) >= minSubstringLen {
		for _, f := range l.stems {
			if strings.Contains(f.stem, folded) || (len(f.stem) >= minSubstringLen && strings.Contains(folded, f.stem)) {
				return f.path, MatchSubstring, true
			}
		}
	}
	return "", "", false
}

func isURL(ref string) bool {
	return strings.Contains(ref, "://")
}

// refBase returns the last path element of a URL or path reference.
func refBase(ref string) string {
	if isURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			return path.Base(u.Path)
		}
	}
	return path.Base(filepath.ToSlash(ref))
}

func stemOf(name string) string {
	ext := filepath.Ext(name)
	if imageExtensions[strings.ToLower(ext)] {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// foldStem lowercases, strips accents and keeps only letters and digits.
func foldStem(s string) string {
	return textnorm.AlnumOnly(textnorm.Fold(s))
}
