// Package manifest pins the exact URLs each source fetches from, along
// with the last observed ETag and content hash, so reruns can detect
// unchanged upstream files and audits can reproduce a fetch.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Pin records the last successful fetch for one source URL.
type Pin struct {
	URL       string    `yaml:"url"`
	ETag      string    `yaml:"etag,omitempty"`
	SHA256    string    `yaml:"sha256,omitempty"`
	FetchedAt time.Time `yaml:"fetched_at"`
}

// Manifest maps source name to its pinned fetch record.
type Manifest struct {
	Sources map[string]Pin `yaml:"sources"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Sources: map[string]Pin{}}
}

// Load reads a manifest from disk. A missing or unreadable manifest is
// not fatal: ingestion proceeds without pins and rebuilds the file on
// the next successful save.
func Load(path string) *Manifest {
	log := zap.L().With(zap.String("component", "manifest"))

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("manifest unreadable, starting fresh", zap.String("path", path), zap.Error(err))
		}
		return New()
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		log.Warn("manifest corrupt, starting fresh", zap.String("path", path), zap.Error(err))
		return New()
	}
	if m.Sources == nil {
		m.Sources = map[string]Pin{}
	}
	return &m
}

// Pin returns the pinned record for a source, if any.
func (m *Manifest) Pin(source string) (Pin, bool) {
	p, ok := m.Sources[source]
	return p, ok
}

// Update records a successful fetch for a source.
func (m *Manifest) Update(source, url, etag string, body []byte, fetchedAt time.Time) {
	sum := sha256.Sum256(body)
	m.Sources[source] = Pin{
		URL:       url,
		ETag:      etag,
		SHA256:    hex.EncodeToString(sum[:]),
		FetchedAt: fetchedAt.UTC(),
	}
}

// Save writes the manifest atomically: marshal to a temp file in the
// destination directory, then rename over the target.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "manifest: marshal")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "manifest: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "manifest: create temp")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "manifest: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "manifest: close temp")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "manifest: rename to %s", path)
	}
	return nil
}
