package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"pump-predictor/internal/common"
)

type envelope struct {
	Kind          string          `json:"kind"`
	SchemaVersion int             `json:"schema_version"`
	Params        json.RawMessage `json:"params"`
	FeatureNames  []string        `json:"feature_names"`
	State         json.RawMessage `json:"state"`
}

func writeEnvelope(w io.Writer, kind string, params any, names []string, state any) error {
	op := "ml.Save(" + kind + ")"
	rawParams, err := json.Marshal(params)
	if err != nil {
		return common.PersistenceError(op, err)
	}
	rawState, err := json.Marshal(state)
	if err != nil {
		return common.PersistenceError(op, err)
	}
	env := envelope{
		Kind:          kind,
		SchemaVersion: common.ModelSchemaVersion,
		Params:        rawParams,
		FeatureNames:  names,
		State:         rawState,
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		return common.PersistenceError(op, err)
	}
	return nil
}

func readEnvelope(r io.Reader, op, kind string, params, state any) ([]string, error) {
	env, err := decodeEnvelope(r, op)
	if err != nil {
		return nil, err
	}
	if env.Kind != kind {
		return nil, common.PersistenceError(op, fmt.Errorf("blob holds %q, want %q", env.Kind, kind))
	}
	if err := json.Unmarshal(env.Params, params); err != nil {
		return nil, common.PersistenceError(op, fmt.Errorf("params: %w", err))
	}
	if err := json.Unmarshal(env.State, state); err != nil {
		return nil, common.PersistenceError(op, fmt.Errorf("state: %w", err))
	}
	return env.FeatureNames, nil
}

func decodeEnvelope(r io.Reader, op string) (envelope, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return env, common.PersistenceError(op, fmt.Errorf("decode: %w", err))
	}
	if env.SchemaVersion != common.ModelSchemaVersion {
		return env, common.PersistenceError(op, fmt.Errorf("unsupported schema_version %d", env.SchemaVersion))
	}
	return env, nil
}

func checkState(width int, names []string, importance []float64, trees []*tree) error {
	if width <= 0 {
		return fmt.Errorf("invalid width %d", width)
	}
	if len(names) != width || len(importance) != width {
		return fmt.Errorf("width %d does not match %d names and %d importances", width, len(names), len(importance))
	}
	if len(trees) == 0 {
		return fmt.Errorf("no trees")
	}
	for i, t := range trees {
		if t == nil {
			return fmt.Errorf("tree %d missing", i)
		}
		if err := t.validate(width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// Kind reports the backend kind stored in a saved blob.
func Kind(blob []byte) (string, error) {
	env, err := decodeEnvelope(bytes.NewReader(blob), "ml.Kind")
	if err != nil {
		return "", err
	}
	return env.Kind, nil
}

// Open restores a backend of whatever kind the blob holds.
func Open(blob []byte) (Backend, error) {
	kind, err := Kind(blob)
	if err != nil {
		return nil, err
	}
	b, err := NewBackend(kind, nil, nil)
	if err != nil {
		return nil, common.PersistenceError("ml.Open", err)
	}
	if err := b.Load(bytes.NewReader(blob)); err != nil {
		return nil, err
	}
	return b, nil
}

// ProbabilityPredictor is implemented by backends that expose calibrated
// positive-class scores.
type ProbabilityPredictor interface {
	PredictProba(X [][]float64) ([]float64, error)
}
