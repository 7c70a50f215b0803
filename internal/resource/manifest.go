package resource

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ManifestEntry is one asset to load at startup.
type ManifestEntry struct {
	Path string `yaml:"path"`
	Pin  bool   `yaml:"pin"`
}

// Manifest lists assets loaded before the first tick.
type Manifest struct {
	Preload []ManifestEntry `yaml:"preload"`
}

// LoadManifest reads a yaml manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var mf Manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &mf, nil
}

// Preload requests every manifest entry, pins those marked pin, and waits
// for all of them. Failed assets are logged and reported together; the
// handles stay registered so callers can substitute placeholders.
func (m *Manager) Preload(ctx context.Context, mf *Manifest) ([]Handle, error) {
	hs := make([]Handle, 0, len(mf.Preload))
	var errs []error
	for _, e := range mf.Preload {
		h, err := m.Request(e.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if e.Pin {
			m.Pin(h)
		}
		hs = append(hs, h)
	}
	for _, h := range hs {
		if _, err := m.Wait(ctx, h); err != nil {
			path, _ := m.Path(h)
			m.log.Warn("preload failed", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return hs, errors.Join(errs...)
}
