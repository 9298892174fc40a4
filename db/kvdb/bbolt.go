package kvdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/logger"
	bolt "go.etcd.io/bbolt"
)

type BoltDB struct {
	store  *bolt.DB
	logger logger.Logger
}

func New(logger logger.Logger, cfg *config.Config) (*BoltDB, error) {
	return Open(logger, cfg.GetKVDBPath())
}

func Open(logger logger.Logger, kvDBPath string) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(kvDBPath), 0755); err != nil {
		logger.Error("failed to create key-value database directory", "err", err.Error(), "path", kvDBPath)
		return nil, fmt.Errorf("failed to create key-value database directory: %w", err)
	}

	store, err := bolt.Open(kvDBPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		logger.Error("failed to open database", "err", err.Error(), "path", kvDBPath)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	boltDB := &BoltDB{
		store:  store,
		logger: logger,
	}

	if err := boltDB.initBuckets(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return boltDB, nil
}

func (b *BoltDB) initBuckets() error {
	return b.store.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				b.logger.Error("failed to create bucket", "bucket", name, "err", err.Error())
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (b *BoltDB) Set(bucketName string, key string, value string) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	return b.store.Update(func(tx *bolt.Tx) error {
		bucket, err := b.bucket(tx, bucketName)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(key), []byte(value)); err != nil {
			b.logger.Error("failed to set key", "bucket", bucketName, "key", key, "err", err.Error())
			return fmt.Errorf("failed to set key %s: %w", key, err)
		}

		return nil
	})
}

func (b *BoltDB) Get(bucketName string, key string) (string, error) {
	if err := b.validateKey(key); err != nil {
		return "", err
	}

	var value []byte
	err := b.store.View(func(tx *bolt.Tx) error {
		bucket, err := b.bucket(tx, bucketName)
		if err != nil {
			return err
		}

		v := bucket.Get([]byte(key))
		if v == nil {
			return &NotFoundError{Bucket: bucketName, Key: key}
		}

		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return "", err
	}

	return string(value), nil
}

// Modify runs a read-modify-write of one key inside a single bolt transaction.
func (b *BoltDB) Modify(bucketName string, key string, modify func(current string, found bool) (string, error)) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	return b.store.Update(func(tx *bolt.Tx) error {
		bucket, err := b.bucket(tx, bucketName)
		if err != nil {
			return err
		}

		current := bucket.Get([]byte(key))
		updated, err := modify(string(current), current != nil)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(key), []byte(updated)); err != nil {
			b.logger.Error("failed to update key", "bucket", bucketName, "key", key, "err", err.Error())
			return fmt.Errorf("failed to update key %s: %w", key, err)
		}
		return nil
	})
}

func (b *BoltDB) GetAllKeys(bucketName string) ([]string, error) {
	var keys []string
	err := b.store.View(func(tx *bolt.Tx) error {
		bucket, err := b.bucket(tx, bucketName)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (b *BoltDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

func (b *BoltDB) Delete(bucketName string, key string) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	return b.store.Update(func(tx *bolt.Tx) error {
		bucket, err := b.bucket(tx, bucketName)
		if err != nil {
			return err
		}

		if err := bucket.Delete([]byte(key)); err != nil {
			b.logger.Error("failed to delete key", "bucket", bucketName, "key", key, "err", err.Error())
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}

		return nil
	})
}

func (b *BoltDB) validateKey(key string) error {
	if key == "" {
		b.logger.Error("key cannot be empty", "key", key)
		return &InvalidKeyError{
			Key:    key,
			Reason: "key cannot be empty",
		}
	}
	return nil
}

func (b *BoltDB) bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(name))
	if bucket == nil {
		b.logger.Error("bucket not found", "bucket", name)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBucket, name)
	}
	return bucket, nil
}
