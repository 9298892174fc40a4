// Package access keeps per-path activity counters that feed the optional access priority ranking.
package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/meghashyamc/aleph/db/kvdb"
	"github.com/meghashyamc/aleph/logger"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindOpened   Kind = "opened"
	KindRemoved  Kind = "removed"
)

const (
	neutralBoost  = 1.0
	boostPerLevel = 0.1
	maxBoost      = 1.5
)

// Store is the part of the key-value database the tracker keeps counters in.
type Store interface {
	Get(bucket string, key string) (string, error)
	Modify(bucket string, key string, modify func(current string, found bool) (string, error)) error
}

type Counters struct {
	Created    int64     `json:"created"`
	Modified   int64     `json:"modified"`
	Opened     int64     `json:"opened"`
	Removed    int64     `json:"removed"`
	LastOpened time.Time `json:"last_opened,omitempty"`
}

type Tracker struct {
	logger logger.Logger
	store  Store
	now    func() time.Time
}

func New(logger logger.Logger, store Store) *Tracker {
	return &Tracker{logger: logger, store: store, now: time.Now}
}

// Record bumps the counter for kind on path.
func (t *Tracker) Record(path string, kind Kind) error {
	err := t.store.Modify(kvdb.AccessBucket, path, func(current string, found bool) (string, error) {
		var counters Counters
		if found {
			if err := json.Unmarshal([]byte(current), &counters); err != nil {
				t.logger.Warn("resetting unreadable access counters", "path", path, "err", err.Error())
				counters = Counters{}
			}
		}

		switch kind {
		case KindCreated:
			counters.Created++
		case KindModified:
			counters.Modified++
		case KindOpened:
			counters.Opened++
			counters.LastOpened = t.now().UTC()
		case KindRemoved:
			counters.Removed++
		default:
			return "", fmt.Errorf("unknown access kind %q", kind)
		}

		data, err := json.Marshal(counters)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		t.logger.Error("could not record access", "path", path, "kind", string(kind), "err", err.Error())
		return fmt.Errorf("could not record %s for %s: %w", kind, path, err)
	}
	return nil
}

func (t *Tracker) Counters(path string) (Counters, error) {
	value, err := t.store.Get(kvdb.AccessBucket, path)
	if err != nil {
		return Counters{}, err
	}
	var counters Counters
	if err := json.Unmarshal([]byte(value), &counters); err != nil {
		return Counters{}, fmt.Errorf("could not unmarshal access counters for %s: %w", path, err)
	}
	return counters, nil
}

// Boost is 1 + 0.1*log2(1 + opened + created/2), capped at 1.5. A path with no history is neutral.
func (t *Tracker) Boost(path string) float64 {
	counters, err := t.Counters(path)
	if err != nil {
		if !errors.Is(err, kvdb.ErrNotFound) {
			t.logger.Debug("could not read access counters", "path", path, "err", err.Error())
		}
		return neutralBoost
	}

	activity := float64(counters.Opened) + float64(counters.Created)/2
	return math.Min(maxBoost, neutralBoost+boostPerLevel*math.Log2(1+activity))
}
