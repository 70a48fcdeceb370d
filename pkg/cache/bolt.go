package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"

	"github.com/coffeebe4code/mono/pkg/output"
)

var markerBucket = []byte("markers")

// BoltStore keeps the markers in a single bbolt database.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

func OpenBoltStore(ctx context.Context, dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", filepath.Dir(dbPath))
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(markerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "failed to initialize %s", dbPath)
	}

	output.Log(ctx).Debug().Str("path", dbPath).Msg("opened marker database")
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Marker(ctx context.Context, identity string) (time.Time, bool, error) {
	var at time.Time
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(markerBucket).Get([]byte(identity))
		if value == nil {
			return nil
		}

		found = true
		return at.UnmarshalBinary(value)
	})
	if err != nil {
		return time.Time{}, false, eris.Wrapf(err, "failed to read marker %s", identity)
	}

	return at, found, nil
}

func (s *BoltStore) Mark(ctx context.Context, identities []string, at time.Time) error {
	value, err := at.MarshalBinary()
	if err != nil {
		return eris.Wrap(err, "failed to encode timestamp")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(markerBucket)
		for _, identity := range identities {
			if err := checkIdentity(identity); err != nil {
				return err
			}

			if err := bucket.Put([]byte(identity), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to write markers")
	}
	return nil
}

func (s *BoltStore) Invalidate(ctx context.Context, identities []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(markerBucket)
		for _, identity := range identities {
			if err := bucket.Delete([]byte(identity)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to remove markers")
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
