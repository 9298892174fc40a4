package icon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meghashyamc/aleph/db/kvdb"
	"github.com/meghashyamc/aleph/logger"
)

const blobExtension = ".png"

// Registry records which icon container each cache key was decoded from.
type Registry interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	GetAllKeys(bucket string) ([]string, error)
	Delete(bucket string, key string) error
}

// Cache stores decoded icons as PNG blobs named by content key. A blob is never rewritten once
// present. Two resolvers racing on the same key both write identical bytes, and the rename makes
// whichever lands last win.
type Cache struct {
	logger   logger.Logger
	dir      string
	registry Registry
}

func NewCache(logger logger.Logger, dir string, registry Registry) *Cache {
	return &Cache{logger: logger, dir: dir, registry: registry}
}

// CacheKey is the hex sha256 of the icon container path.
func CacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) blobPath(key string) string {
	return filepath.Join(c.dir, key+blobExtension)
}

func (c *Cache) Load(key string) ([]byte, bool) {
	blob, err := os.ReadFile(c.blobPath(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("could not read cached icon", "key", key, "err", err.Error())
		}
		return nil, false
	}
	if len(blob) == 0 {
		return nil, false
	}
	return blob, true
}

// Store writes blob under key through a temp file and a rename, so readers never see a partial blob.
func (c *Cache) Store(key string, source string, blob []byte) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("could not create icon cache dir %s: %w", c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temp icon file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write temp icon file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp icon file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.blobPath(key)); err != nil {
		return fmt.Errorf("could not move icon into cache: %w", err)
	}

	if c.registry != nil {
		if err := c.registry.Set(kvdb.IconsBucket, key, source); err != nil {
			c.logger.Warn("could not record icon source", "key", key, "source", source, "err", err.Error())
		}
	}
	return nil
}

// Source returns the container path a cached key was decoded from.
func (c *Cache) Source(key string) (string, error) {
	if c.registry == nil {
		return "", &kvdb.NotFoundError{Bucket: kvdb.IconsBucket, Key: key}
	}
	return c.registry.Get(kvdb.IconsBucket, key)
}

// Prune drops cached icons whose container no longer exists, typically because the application
// was uninstalled. Blobs without a recorded source are left alone. It returns how many were removed.
func (c *Cache) Prune() (int, error) {
	if c.registry == nil {
		return 0, nil
	}

	keys, err := c.registry.GetAllKeys(kvdb.IconsBucket)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		source, err := c.registry.Get(kvdb.IconsBucket, key)
		if err != nil {
			c.logger.Debug("could not read icon source", "key", key, "err", err.Error())
			continue
		}
		if _, err := os.Stat(source); !errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := os.Remove(c.blobPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("could not remove cached icon", "key", key, "err", err.Error())
			continue
		}
		if err := c.registry.Delete(kvdb.IconsBucket, key); err != nil {
			c.logger.Warn("could not forget icon source", "key", key, "err", err.Error())
			continue
		}
		removed++
	}
	return removed, nil
}
