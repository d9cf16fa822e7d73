package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/subathon-tools/subtimer/internal/timer"
)

var (
	bucketName = []byte("timer")
	stateKey   = []byte("state")

	// ErrNoSnapshot reports that the store holds no snapshot yet.
	ErrNoSnapshot = errors.New("no snapshot stored")
)

// Snapshot is the durable state blob. LastSaved is epoch milliseconds so the
// format stays readable across restarts and implementations.
type Snapshot struct {
	TimeRemaining int            `json:"timeRemaining"`
	IsActive      bool           `json:"isActive"`
	Settings      timer.Settings `json:"settings"`
	LastSaved     int64          `json:"lastSaved"`
}

// SavedAt returns the wall-clock time the snapshot was written.
func (s Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.LastSaved)
}

// Store persists and loads the single timer snapshot.
type Store interface {
	Load() (*Snapshot, error)
	Save(snap Snapshot) error
	Close() error
}

// BoltStore keeps the snapshot in a bbolt file, one bucket, one key.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the snapshot database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load reads the stored snapshot. Returns ErrNoSnapshot when nothing has
// been saved yet; a blob that fails to decode is reported as an error so the
// caller can fall back to defaults.
func (s *BoltStore) Load() (*Snapshot, error) {
	var raw []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(stateKey); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if raw == nil {
		return nil, ErrNoSnapshot
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot blob.
func (s *BoltStore) Save(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(stateKey, data)
	}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
