// Package journal keeps a local BoltDB log of reconciliation outcomes and the
// claim keys used to suppress duplicate notifications.
//
// A bolt file is locked by one process at a time, so only the webhook server
// opens the journal.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

var (
	outcomesBucket   = []byte("outcomes")
	deliveriesBucket = []byte("deliveries")
	claimsBucket     = []byte("claims")
)

// ErrNotFound is returned when a delivery id has no journal entry
var ErrNotFound = fmt.Errorf("delivery %w", models.ErrNotFound)

// ErrLocked is returned by Open when another handle holds the file lock
var ErrLocked = errors.New("journal is locked by another process")

// Journal is a BoltDB-backed outcome log
type Journal struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the journal file at path
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{outcomesBucket, deliveriesBucket, claimsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal buckets: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the file lock
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an outcome. Recording the same delivery id twice keeps the
// first entry, except that a pending entry is replaced in place by the
// outcome that completes it.
func (j *Journal) Record(_ context.Context, outcome models.Outcome) error {
	if outcome.DeliveryID == "" {
		return models.InvalidArgument("outcome has no delivery id")
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		deliveries := tx.Bucket(deliveriesBucket)
		outcomes := tx.Bucket(outcomesBucket)

		if key := deliveries.Get([]byte(outcome.DeliveryID)); key != nil {
			var stored models.Outcome
			if err := json.Unmarshal(outcomes.Get(key), &stored); err != nil {
				return fmt.Errorf("failed to decode outcome %s: %w", outcome.DeliveryID, err)
			}
			if !stored.Pending || outcome.Pending {
				return nil
			}
			return outcomes.Put(append([]byte(nil), key...), data)
		}

		seq, err := outcomes.NextSequence()
		if err != nil {
			return err
		}
		key := itob(seq)
		if err := outcomes.Put(key, data); err != nil {
			return err
		}
		return deliveries.Put([]byte(outcome.DeliveryID), key)
	})
}

// Get returns the outcome recorded for a delivery id
func (j *Journal) Get(_ context.Context, deliveryID string) (models.Outcome, error) {
	var outcome models.Outcome
	err := j.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(deliveriesBucket).Get([]byte(deliveryID))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket(outcomesBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &outcome)
	})
	return outcome, err
}

// List returns up to limit outcomes, newest first. A limit <= 0 returns all.
func (j *Journal) List(_ context.Context, limit int) ([]models.Outcome, error) {
	items := []models.Outcome{}

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(outcomesBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var o models.Outcome
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			items = append(items, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Claim stores key if it is absent. It returns false when key was already
// claimed.
func (j *Journal) Claim(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, models.InvalidArgument("empty claim key")
	}

	claimed := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(claimsBucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		stamp, err := j.now().UTC().MarshalText()
		if err != nil {
			return err
		}
		claimed = true
		return b.Put([]byte(key), stamp)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Release drops a claim. Releasing an unknown key is a no-op.
func (j *Journal) Release(_ context.Context, key string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(claimsBucket).Delete([]byte(key))
	})
}

// Ping reports whether the journal file is usable
func (j *Journal) Ping() error {
	return j.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(outcomesBucket) == nil {
			return errors.New("journal outcomes bucket missing")
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
