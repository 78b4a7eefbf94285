// Package storage persists pot registrations, adaptive state, controller
// configuration and step metrics.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/projectplant/etkc/internal/model"
)

// ErrPotNotFound is returned by lookups for an unregistered plant id.
var ErrPotNotFound = errors.New("storage: pot not found")

// Pot pairs a plant id with its physical constants.
type Pot struct {
	ID     string          `json:"id"`
	Static model.PotStatic `json:"static"`
}

// Store is the persistence contract consumed by the worker and the REST
// collaborators. Implementations must be safe for concurrent use.
type Store interface {
	UpsertPot(ctx context.Context, plantID string, static model.PotStatic) error
	GetPot(ctx context.Context, plantID string) (model.PotStatic, error)
	ListPots(ctx context.Context) ([]Pot, error)

	// GetState reports found=false when no state row exists yet; callers
	// fall back to the class preset.
	GetState(ctx context.Context, plantID string) (model.PotState, bool, error)
	PutState(ctx context.Context, plantID string, state model.PotState) error
	// PatchState merges the provided fields onto the stored (or preset)
	// state and replaces the record as a whole.
	PatchState(ctx context.Context, plantID string, patch model.PotStatePatch) (model.PotState, error)

	GetConfig(ctx context.Context, plantID string) (model.StepConfig, bool, error)
	PutConfig(ctx context.Context, plantID string, cfg model.StepConfig) error

	AppendMetric(ctx context.Context, rec model.MetricRecord) error
	// ListMetrics returns records in chronological order, bounded to the
	// newest `limit` entries (default 200, capped at 2000).
	ListMetrics(ctx context.Context, plantID string, since *time.Time, limit int) ([]model.MetricRecord, error)

	Close() error
}

// StateOrDefault loads the stored state or derives the class preset.
func StateOrDefault(ctx context.Context, s Store, plantID string, className string) (model.PotState, error) {
	state, found, err := s.GetState(ctx, plantID)
	if err != nil {
		return model.PotState{}, err
	}
	if !found {
		return model.DefaultStateFor(className), nil
	}
	return state, nil
}

// ConfigOrDefault loads the stored config or the controller defaults.
func ConfigOrDefault(ctx context.Context, s Store, plantID string) (model.StepConfig, error) {
	cfg, found, err := s.GetConfig(ctx, plantID)
	if err != nil {
		return model.StepConfig{}, err
	}
	if !found {
		return model.DefaultStepConfig(), nil
	}
	return cfg, nil
}
