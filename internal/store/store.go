package store

import (
	"context"
	"errors"
	"time"

	"carevrp/internal/model"
	"carevrp/internal/vrp"
)

// Store is the persistence interface used by the API server and the solve
// worker.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, doc model.Instance) (model.InstanceRecord, error)
	GetInstance(ctx context.Context, id string) (model.InstanceRecord, error)
	ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error)
	// EditInstance applies edit to the stored instance under a lock. The new
	// revision is persisted and older queued or finished solves become stale.
	EditInstance(ctx context.Context, id string, edit func(in *vrp.Instance) error) (model.InstanceRecord, error)
	DeleteInstance(ctx context.Context, id string) error

	// Solve runs
	EnqueueSolve(ctx context.Context, instanceID string, req model.SolveRequest) (model.SolveRun, error)
	GetSolve(ctx context.Context, id string) (model.SolveRun, error)
	ListSolves(ctx context.Context, instanceID string) ([]model.SolveRun, error)
	// ClaimSolves moves up to limit queued runs to running, oldest first.
	ClaimSolves(ctx context.Context, limit int) ([]model.SolveRun, error)
	SetSolveStage(ctx context.Context, id, stage string) error
	// FinishSolve stores the outcome. When the instance changed or vanished
	// since the run was queued it is marked stale and ErrStaleRevision is
	// returned with the run.
	FinishSolve(ctx context.Context, id string, res *model.Result, errMsg string) (model.SolveRun, error)

	// Callback deliveries
	EnqueueCallback(ctx context.Context, solveID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error)
	MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error

	Ping(ctx context.Context) error
}

// CallbackDelivery is one queued POST of a solve event to a callback URL.
// SolveID points at the model.SolveRun whose outcome Payload carries.
type CallbackDelivery struct {
	ID        string
	SolveID   string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Status    string
	Attempts  int
}

var (
	ErrNotFound      = errors.New("not found")
	ErrStaleRevision = errors.New("instance changed since solve was queued")
)

// record builds the API view of an instance.
func record(id string, in *vrp.Instance, created, updated time.Time) model.InstanceRecord {
	return model.InstanceRecord{
		ID:        id,
		Revision:  in.Revision,
		Instance:  model.FromVRP(in),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}
