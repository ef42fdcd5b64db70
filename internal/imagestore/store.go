// Package imagestore locates product images, stores them by content hash and writes the
// responsive variants the catalog links to.
package imagestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const manifestName = "manifest.json"

// Manifest records what was generated for one content hash. It lives next to the variants.
type Manifest struct {
	ContentHash string                     `json:"content_hash"`
	Format      string                     `json:"format"`
	Width       int                        `json:"width"`
	Height      int                        `json:"height"`
	Bytes       int64                      `json:"bytes"`
	Encoder     string                     `json:"encoder"`
	Variants    map[string]ManifestVariant `json:"variants"`
}

// ManifestVariant is one generated file.
type ManifestVariant struct {
	Path   string `json:"path"` // relative to the catalog root
	SHA256 string `json:"sha256"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Store is the content-addressed image store. Blobs live at <dir>/<hh>/<hash>.<ext> and
// variants at <dir>/<hh>/<hash>/<variant>.<ext>, where hh is the first byte of the hash.
type Store struct {
	root   string // catalog root, recorded paths are relative to it
	dir    string
	group  singleflight.Group
	writes atomic.Int64
	logger *zap.Logger
}

// NewStore opens the store at dir. Paths recorded on assets are relative to root.
func NewStore(root, dir string, logger *zap.Logger) *Store {
	return &Store{root: root, dir: dir, logger: logging.OrNop(logger)}
}

// Writes returns the number of files written since the store was opened.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

// HashFile returns the SHA-256 of a file's bytes.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) hashDir(hash string) string {
	return filepath.Join(s.dir, hash[:2], hash)
}

func (s *Store) rel(abs string) string {
	r, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(r)
}

// Lookup returns the manifest of a hash already in the store.
func (s *Store) Lookup(hash string) (*Manifest, bool) {
	if len(hash) < 2 {
		return nil, false
	}
	var m Manifest
	if err := fsutil.ReadJSON(filepath.Join(s.hashDir(hash), manifestName), &m); err != nil {
		return nil, false
	}
	return &m, true
}

// Ensure makes sure the blob, the four variants and the manifest exist for the file at src,
// whose content hash is hash. Nothing is written when everything is already in place with
// matching hashes. Concurrent calls for one hash share a single generation.
func (s *Store) Ensure(src, hash, policy string) (*Manifest, error) {
	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.ensure(src, hash, policy)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

func (s *Store) ensure(src, hash, policy string) (*Manifest, error) {
	existing, found := s.Lookup(hash)
	if found && s.verify(existing) {
		return existing, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &StoreError{ContentHash: hash, Message: "cannot read source image", Cause: err}
	}
	if got := HashBytes(data); got != hash {
		return nil, &StoreError{ContentHash: hash, Message: fmt.Sprintf("source changed while linking (now %s)", got)}
	}
	decoded, err := Decode(data)
	if err != nil {
		return nil, &StoreError{ContentHash: hash, Message: "cannot decode image", Cause: fmt.Errorf("%w: %v", ErrUndecodable, err)}
	}

	// A manifest written under another policy keeps its encoder; variants are never re-encoded.
	enc := EncoderForPolicy(policy)
	if found && existing.Encoder != "" {
		enc = EncoderForPolicy(existing.Encoder)
	}

	bounds := decoded.Image.Bounds()
	ext := formatExt(decoded.Format, strings.ToLower(filepath.Ext(src)))
	m := &Manifest{
		ContentHash: hash,
		Format:      decoded.Format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Bytes:       int64(len(data)),
		Encoder:     enc.Policy,
		Variants:    make(map[string]ManifestVariant, len(ResizedVariants)+1),
	}

	dir := s.hashDir(hash)
	if err := s.put(filepath.Join(s.dir, hash[:2], hash+ext), data); err != nil {
		return nil, &StoreError{ContentHash: hash, Message: "cannot write blob", Cause: err}
	}
	originalPath := filepath.Join(dir, types.VariantOriginal+ext)
	if err := s.put(originalPath, data); err != nil {
		return nil, &StoreError{ContentHash: hash, Message: "cannot write original", Cause: err}
	}
	m.Variants[types.VariantOriginal] = ManifestVariant{
		Path:   s.rel(originalPath),
		SHA256: hash,
		Width:  m.Width,
		Height: m.Height,
	}

	for _, name := range ResizedVariants {
		img := Resize(decoded.Image, VariantWidths[name])
		out, err := enc.Encode(img)
		if err != nil {
			return nil, &StoreError{ContentHash: hash, Message: "cannot encode " + name, Cause: err}
		}
		p := filepath.Join(dir, name+enc.Ext)
		if err := s.put(p, out); err != nil {
			return nil, &StoreError{ContentHash: hash, Message: "cannot write " + name, Cause: err}
		}
		b := img.Bounds()
		m.Variants[name] = ManifestVariant{Path: s.rel(p), SHA256: HashBytes(out), Width: b.Dx(), Height: b.Dy()}
	}

	data, err = fsutil.MarshalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := s.put(filepath.Join(dir, manifestName), data); err != nil {
		return nil, &StoreError{ContentHash: hash, Message: "cannot write manifest", Cause: err}
	}
	s.logger.Debug("stored image", zap.String("content_hash", hash), zap.String("encoder", enc.Policy))
	return m, nil
}

// put writes data unless the file already holds exactly these bytes.
func (s *Store) put(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return err
	}
	s.writes.Add(1)
	return nil
}

// verify checks that the blob and every variant recorded in m exist with the recorded hashes.
func (s *Store) verify(m *Manifest) bool {
	if len(m.Variants) != len(ResizedVariants)+1 {
		return false
	}
	for _, v := range m.Variants {
		got, err := HashFile(filepath.Join(s.root, filepath.FromSlash(v.Path)))
		if err != nil || got != v.SHA256 {
			return false
		}
	}
	orig, ok := m.Variants[types.VariantOriginal]
	if !ok {
		return false
	}
	blob := filepath.Join(s.dir, m.ContentHash[:2], m.ContentHash+filepath.Ext(orig.Path))
	return fsutil.Exists(blob)
}

// Asset builds the ImageAsset for a manifest.
func (m *Manifest) Asset(role, original string) types.ImageAsset {
	variants := make(map[string]string, len(m.Variants))
	for name, v := range m.Variants {
		variants[name] = v.Path
	}
	return types.ImageAsset{
		Role:        role,
		Original:    original,
		ContentHash: m.ContentHash,
		Variants:    variants,
		Width:       m.Width,
		Height:      m.Height,
		Format:      m.Format,
		Bytes:       m.Bytes,
	}
}
