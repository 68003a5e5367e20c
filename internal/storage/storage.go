// Package storage provides persistent storage for trained pump maintenance
// models. It uses BoltDB as the underlying storage engine to keep model blobs,
// the fitted feature transformers they depend on, version metadata and a log
// of training runs.
//
// The package provides thread-safe operations; BoltDB serialises writers and
// allows concurrent readers.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"pump-predictor/internal/common"

	"go.etcd.io/bbolt"
)

const (
	dbFileName = "pump-models.db"

	modelsBucket       = "models"       // version id -> backend blob
	transformersBucket = "transformers" // version id -> transformer JSON
	versionsBucket     = "versions"     // version id -> ModelVersion JSON
	runsBucket         = "runs"         // time-ordered run key -> RunRecord JSON
	metaBucket         = "meta"         // bookkeeping keys
)

var activeKey = []byte("active")

// ErrNotFound is returned when a requested version or run does not exist.
var ErrNotFound = errors.New("not found")

// Store keeps models and their metadata in a single BoltDB file.
type Store struct {
	db   *bbolt.DB
	path string
}

// New opens (or creates) the model database inside dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, common.PersistenceError("storage.New", fmt.Errorf("open database: %w", err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{modelsBucket, transformersBucket, versionsBucket, runsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, common.PersistenceError("storage.New", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database. Closing twice is safe.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) get(bucket string, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get(key)
		if v == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		// Values are only valid for the life of the transaction.
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}
