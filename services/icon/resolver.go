// Package icon resolves a displayable icon for a search result: the decoded icon of an
// application bundle, or a static category icon chosen by file extension.
package icon

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/scope"
)

// preferredSizes is the order variants are picked in.
var preferredSizes = []int{128, 64, 32, 16}

type Resolver struct {
	logger logger.Logger
	cache  *Cache

	decodes atomic.Int64
}

func NewResolver(logger logger.Logger, cache *Cache) *Resolver {
	return &Resolver{logger: logger, cache: cache}
}

// Resolve returns a PNG data URI for the icon of the bundle at path. It reports false when the
// bundle has no icon container or none of its variants decode; decode failures are only logged.
func (r *Resolver) Resolve(path string) (string, bool) {
	source, ok := FindBundleIcon(path)
	if !ok {
		return "", false
	}

	key := CacheKey(source)
	if r.cache != nil {
		if blob, ok := r.cache.Load(key); ok {
			return dataURI("image/png", blob), true
		}
	}

	blob, err := r.decode(source)
	if err != nil {
		r.logger.Debug("could not decode bundle icon", "bundle", path, "icon", source, "err", err.Error())
		return "", false
	}

	if r.cache != nil {
		if err := r.cache.Store(key, source, blob); err != nil {
			r.logger.Warn("could not cache bundle icon", "bundle", path, "err", err.Error())
		}
	}
	return dataURI("image/png", blob), true
}

func (r *Resolver) decode(source string) ([]byte, error) {
	r.decodes.Add(1)

	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	family, err := DecodeICNS(file, preferredSizes...)
	if err != nil {
		return nil, err
	}
	img, _, ok := family.Best(preferredSizes...)
	if !ok {
		return nil, fmt.Errorf("%w in sizes %v, have %v", ErrNoVariant, preferredSizes, family.Sizes())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("could not encode icon as png: %w", err)
	}
	return buf.Bytes(), nil
}

// PruneCache removes cached icons of containers that are gone.
func (r *Resolver) PruneCache() (int, error) {
	if r.cache == nil {
		return 0, nil
	}
	return r.cache.Prune()
}

// IconFor always returns an icon: the decoded one for executables that have it, otherwise the
// generic application icon for bundles and the category icon for everything else.
func (r *Resolver) IconFor(path string) string {
	if IsExecutable(path) {
		if uri, ok := r.Resolve(path); ok {
			return uri
		}
		if scope.IsBundle(path) {
			return ApplicationIcon()
		}
	}
	return CategoryIcon(filepath.Ext(path))
}

// IsExecutable reports whether path is an application bundle or, on Unix-like systems, a regular
// file with any execute permission bit set.
func IsExecutable(path string) bool {
	if scope.IsBundle(path) {
		return true
	}
	if runtime.GOOS == "windows" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
