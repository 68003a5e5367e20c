package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pump-predictor/internal/common"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// RunRecord summarises one training run.
type RunRecord struct {
	ID         string                        `json:"id"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
	DataSource string                        `json:"data_source"`
	Rows       int                           `json:"rows"`
	TrainRows  int                           `json:"train_rows"`
	TestRows   int                           `json:"test_rows"`
	FitScope   string                        `json:"fit_scope"`
	Metric     string                        `json:"metric"`
	Winner     string                        `json:"winner"`
	VersionID  string                        `json:"version_id,omitempty"`
	Metrics    map[string]map[string]float64 `json:"metrics"`
	Failures   map[string]string             `json:"failures,omitempty"`
}

// Runs are keyed by start time so cursor order is chronological.
func runKey(r RunRecord) []byte {
	return []byte(fmt.Sprintf("%020d_%s", r.StartedAt.UnixNano(), r.ID))
}

// StoreRun appends a run record, assigning an ID and start time when empty.
func (s *Store) StoreRun(r RunRecord) (RunRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return tx.Bucket([]byte(runsBucket)).Put(runKey(r), data)
	})
	if err != nil {
		return r, common.PersistenceError("storage.StoreRun", err)
	}
	return r, nil
}

// RunsInRange returns runs started within [start, end], oldest first.
func (s *Store) RunsInRange(start, end time.Time) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d_~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var r RunRecord
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, common.PersistenceError("storage.RunsInRange", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (RunRecord, error) {
	var r RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket([]byte(runsBucket)).Cursor().Last()
		if v == nil {
			return fmt.Errorf("run: %w", ErrNotFound)
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return RunRecord{}, common.PersistenceError("storage.LatestRun", err)
	}
	return r, nil
}
