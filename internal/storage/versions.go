package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"pump-predictor/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// ModelVersion describes one stored model.
type ModelVersion struct {
	ID        string             `json:"id"`
	Backend   string             `json:"backend"`
	RunID     string             `json:"run_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Metric    string             `json:"metric"`
	Metrics   map[string]float64 `json:"metrics"`
	Features  []string           `json:"features"`
	IsActive  bool               `json:"is_active"`
}

// SaveVersion stores a model blob together with the transformer it was trained
// behind. The version is not activated. ID and CreatedAt are filled in when
// empty.
func (s *Store) SaveVersion(v ModelVersion, model, transformer []byte) (ModelVersion, error) {
	const op = "storage.SaveVersion"
	if len(model) == 0 || len(transformer) == 0 {
		return v, common.PersistenceError(op, errors.New("model and transformer blobs are required"))
	}
	if v.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return v, common.PersistenceError(op, err)
		}
		v.ID = id.String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.IsActive = false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(v.ID)
		if tx.Bucket([]byte(versionsBucket)).Get(key) != nil {
			return fmt.Errorf("version %s already exists", v.ID)
		}
		meta, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		if err := tx.Bucket([]byte(versionsBucket)).Put(key, meta); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(modelsBucket)).Put(key, model); err != nil {
			return err
		}
		return tx.Bucket([]byte(transformersBucket)).Put(key, transformer)
	})
	if err != nil {
		return v, common.PersistenceError(op, err)
	}

	log.Debug().Str("version", v.ID).Str("backend", v.Backend).Msg("Model version stored")
	return v, nil
}

// Activate makes id the version served by Current.
func (s *Store) Activate(id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return activate(tx, id)
	})
	if err != nil {
		return common.PersistenceError("storage.Activate", err)
	}
	log.Info().Str("version", id).Msg("Model version activated")
	return nil
}

func activate(tx *bbolt.Tx, id string) error {
	versions := tx.Bucket([]byte(versionsBucket))
	if versions.Get([]byte(id)) == nil {
		return fmt.Errorf("version %s: %w", id, ErrNotFound)
	}

	if prev := tx.Bucket([]byte(metaBucket)).Get(activeKey); prev != nil && string(prev) != id {
		if err := setActiveFlag(versions, prev, false); err != nil {
			return err
		}
	}
	if err := setActiveFlag(versions, []byte(id), true); err != nil {
		return err
	}
	return tx.Bucket([]byte(metaBucket)).Put(activeKey, []byte(id))
}

func setActiveFlag(b *bbolt.Bucket, key []byte, active bool) error {
	raw := b.Get(key)
	if raw == nil {
		return nil
	}
	var v ModelVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal version %s: %w", key, err)
	}
	v.IsActive = active
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// Rollback activates the version created just before the active one and
// returns it.
func (s *Store) Rollback() (ModelVersion, error) {
	const op = "storage.Rollback"
	var target ModelVersion
	err := s.db.Update(func(tx *bbolt.Tx) error {
		versions, err := listVersions(tx)
		if err != nil {
			return err
		}
		if len(versions) < 2 {
			return errors.New("no previous version available for rollback")
		}

		current := -1
		for i, v := range versions {
			if v.IsActive {
				current = i
				break
			}
		}
		if current == -1 {
			return errors.New("no active version found")
		}
		if current+1 >= len(versions) {
			return errors.New("active version is the oldest")
		}

		target = versions[current+1]
		target.IsActive = true
		return activate(tx, target.ID)
	})
	if err != nil {
		return ModelVersion{}, common.PersistenceError(op, err)
	}
	log.Warn().Str("version", target.ID).Msg("Rolled back to previous model version")
	return target, nil
}

// Current returns the active version.
func (s *Store) Current() (ModelVersion, error) {
	raw, err := s.get(metaBucket, activeKey)
	if err != nil {
		return ModelVersion{}, common.PersistenceError("storage.Current", fmt.Errorf("no active version: %w", err))
	}
	return s.Version(string(raw))
}

// Version returns the metadata of one version.
func (s *Store) Version(id string) (ModelVersion, error) {
	raw, err := s.get(versionsBucket, []byte(id))
	if err != nil {
		return ModelVersion{}, common.PersistenceError("storage.Version", err)
	}
	var v ModelVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		return ModelVersion{}, common.PersistenceError("storage.Version", err)
	}
	return v, nil
}

// List returns every version, newest first.
func (s *Store) List() ([]ModelVersion, error) {
	var out []ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = listVersions(tx)
		return err
	})
	if err != nil {
		return nil, common.PersistenceError("storage.List", err)
	}
	return out, nil
}

func listVersions(tx *bbolt.Tx) ([]ModelVersion, error) {
	var out []ModelVersion
	err := tx.Bucket([]byte(versionsBucket)).ForEach(func(k, raw []byte) error {
		var v ModelVersion
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("unmarshal version %s: %w", k, err)
		}
		out = append(out, v)
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

// ModelBlob returns the saved backend of a version.
func (s *Store) ModelBlob(id string) ([]byte, error) {
	b, err := s.get(modelsBucket, []byte(id))
	if err != nil {
		return nil, common.PersistenceError("storage.ModelBlob", err)
	}
	return b, nil
}

// TransformerBlob returns the saved transformer of a version.
func (s *Store) TransformerBlob(id string) ([]byte, error) {
	b, err := s.get(transformersBucket, []byte(id))
	if err != nil {
		return nil, common.PersistenceError("storage.TransformerBlob", err)
	}
	return b, nil
}
