package identity

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/blake2b"
)

// Manifest declares one extension bundle.
type Manifest struct {
	BundleID    string   `yaml:"bundle_id" toml:"bundle_id"`
	DisplayName string   `yaml:"display_name" toml:"display_name"`
	Executables []string `yaml:"executables" toml:"executables"`
	Digest      string   `yaml:"digest" toml:"digest"`

	Source string `yaml:"-" toml:"-"`
}

func (m *Manifest) validate() error {
	if strings.TrimSpace(m.BundleID) == "" {
		return fmt.Errorf("%s: bundle_id is required", m.Source)
	}
	if len(m.Executables) == 0 {
		return fmt.Errorf("%s: at least one executable pattern is required", m.Source)
	}
	for _, p := range m.Executables {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%s: executable pattern %q must be absolute", m.Source, p)
		}
		if !doublestar.ValidatePathPattern(p) {
			return fmt.Errorf("%s: invalid executable pattern %q", m.Source, p)
		}
	}
	if m.Digest != "" {
		raw, err := hex.DecodeString(m.Digest)
		if err != nil || len(raw) != blake2b.Size256 {
			return fmt.Errorf("%s: digest must be a hex blake2b-256 sum", m.Source)
		}
	}
	if m.DisplayName == "" {
		m.DisplayName = m.BundleID
	}
	return nil
}

// ParseManifest decodes a manifest, choosing the codec by file extension.
func ParseManifest(name string, data []byte) (Manifest, error) {
	m := Manifest{Source: name}
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		return Manifest{}, fmt.Errorf("%s: unsupported manifest format", name)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", name, err)
	}
	m.Source = name
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Catalog is an immutable set of manifests.
type Catalog struct {
	manifests []Manifest
}

// NewCatalog builds a catalog, rejecting duplicate bundle ids.
func NewCatalog(manifests ...Manifest) (*Catalog, error) {
	seen := make(map[string]string, len(manifests))
	for i := range manifests {
		m := &manifests[i]
		if err := m.validate(); err != nil {
			return nil, err
		}
		if prev, ok := seen[m.BundleID]; ok {
			return nil, fmt.Errorf("bundle %s declared by both %s and %s", m.BundleID, prev, m.Source)
		}
		seen[m.BundleID] = m.Source
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].BundleID < manifests[j].BundleID })
	return &Catalog{manifests: manifests}, nil
}

// LoadCatalog reads every *.yaml, *.yml and *.toml file under dir. A
// missing directory yields an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &Catalog{}, nil
	}

	var (
		mu        sync.Mutex
		manifests []Manifest
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml", ".toml":
		default:
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		m, err := ParseManifest(p, data)
		if err != nil {
			return err
		}

		mu.Lock()
		manifests = append(manifests, m)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load manifests from %s: %w", dir, err)
	}
	return NewCatalog(manifests...)
}

// Len is the number of manifests.
func (c *Catalog) Len() int { return len(c.manifests) }

// Manifests returns a copy of the catalog contents.
func (c *Catalog) Manifests() []Manifest {
	return append([]Manifest(nil), c.manifests...)
}

// Match finds the single manifest whose patterns match executable and
// verifies its digest when one is pinned.
func (c *Catalog) Match(executable string) (Manifest, error) {
	var found []Manifest
	for _, m := range c.manifests {
		for _, p := range m.Executables {
			if ok, _ := doublestar.PathMatch(p, executable); ok {
				found = append(found, m)
				break
			}
		}
	}

	switch len(found) {
	case 0:
		return Manifest{}, fmt.Errorf("%w: %s", ErrUnresolved, executable)
	case 1:
	default:
		ids := make([]string, len(found))
		for i, m := range found {
			ids[i] = m.BundleID
		}
		return Manifest{}, fmt.Errorf("%w: %s matches %s", ErrAmbiguous, executable, strings.Join(ids, ", "))
	}

	m := found[0]
	if m.Digest == "" {
		return m, nil
	}
	sum, err := FileDigest(executable)
	if err != nil {
		return Manifest{}, err
	}
	if !strings.EqualFold(sum, m.Digest) {
		return Manifest{}, fmt.Errorf("%w: %s", ErrDigestMismatch, executable)
	}
	return m, nil
}

// FileDigest returns the hex blake2b-256 sum of a file.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open executable: %w", err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash executable: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
