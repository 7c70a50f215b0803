package resource

import (
	"errors"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var ErrInvalidPath = errors.New("resource: invalid path")

// Canonicalize turns an asset reference into the dedup key: NFC-normalized,
// slash separated, cleaned, relative to the asset root. Paths escaping the
// root are rejected.
func Canonicalize(p string) (string, error) {
	p = norm.NFC.String(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "res://")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}

// Ext returns the lower-cased extension of p including every dot-separated
// suffix of the base name, e.g. "walk.anim.yaml" -> ".anim.yaml".
func Ext(p string) string {
	base := path.Base(p)
	i := strings.IndexByte(base, '.')
	if i <= 0 {
		return strings.ToLower(path.Ext(base))
	}
	return strings.ToLower(base[i:])
}
