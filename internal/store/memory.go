package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carevrp/internal/model"
	"carevrp/internal/vrp"
)

type memInstance struct {
	in      *vrp.Instance
	created time.Time
	updated time.Time
}

// memDelivery augments CallbackDelivery with scheduling state
type memDelivery struct {
	CallbackDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
	seq           int
}

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	instances  map[string]*memInstance
	runs       map[string]*model.SolveRun
	runOrder   []string // run ids in enqueue order
	deliveries map[string]*memDelivery
	seq        int
}

func NewMemory() *Memory {
	return &Memory{
		instances:  map[string]*memInstance{},
		runs:       map[string]*model.SolveRun{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateInstance(ctx context.Context, doc model.Instance) (model.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	id := uuid.NewString()
	m.instances[id] = &memInstance{in: doc.ToVRP(), created: now, updated: now}
	return record(id, m.instances[id].in, now, now), nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (model.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, ok := m.instances[id]
	if !ok {
		return model.InstanceRecord{}, ErrNotFound
	}
	return record(id, mi.in, mi.created, mi.updated), nil
}

func (m *Memory) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		if cursor == "" || id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := []model.InstanceRecord{}
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		mi := m.instances[id]
		out = append(out, record(id, mi.in, mi.created, mi.updated))
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) EditInstance(ctx context.Context, id string, edit func(in *vrp.Instance) error) (model.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, ok := m.instances[id]
	if !ok {
		return model.InstanceRecord{}, ErrNotFound
	}
	in := mi.in.Clone()
	if err := edit(in); err != nil {
		return model.InstanceRecord{}, err
	}
	mi.in = in
	mi.updated = time.Now().UTC()
	for _, r := range m.runs {
		if r.InstanceID == id && r.Revision < in.Revision && (r.Status == model.RunQueued || r.Status == model.RunDone) {
			r.Status = model.RunStale
		}
	}
	return record(id, mi.in, mi.created, mi.updated), nil
}

func (m *Memory) DeleteInstance(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return ErrNotFound
	}
	delete(m.instances, id)
	return nil
}

func (m *Memory) EnqueueSolve(ctx context.Context, instanceID string, req model.SolveRequest) (model.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, ok := m.instances[instanceID]
	if !ok {
		return model.SolveRun{}, ErrNotFound
	}
	r := &model.SolveRun{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		Revision:    mi.in.Revision,
		Status:      model.RunQueued,
		CallbackURL: req.CallbackURL,
		Secret:      req.Secret,
		CreatedAt:   time.Now().UTC(),
	}
	m.runs[r.ID] = r
	m.runOrder = append(m.runOrder, r.ID)
	return *r, nil
}

func (m *Memory) GetSolve(ctx context.Context, id string) (model.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.SolveRun{}, ErrNotFound
	}
	return *r, nil
}

func (m *Memory) ListSolves(ctx context.Context, instanceID string) ([]model.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SolveRun{}
	for _, id := range m.runOrder {
		if r := m.runs[id]; r.InstanceID == instanceID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *Memory) ClaimSolves(ctx context.Context, limit int) ([]model.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SolveRun{}
	now := time.Now().UTC()
	for _, id := range m.runOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		r := m.runs[id]
		if r.Status != model.RunQueued {
			continue
		}
		r.Status = model.RunRunning
		r.StartedAt = &now
		out = append(out, *r)
	}
	return out, nil
}

func (m *Memory) SetSolveStage(ctx context.Context, id, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	r.Stage = stage
	return nil
}

func (m *Memory) FinishSolve(ctx context.Context, id string, res *model.Result, errMsg string) (model.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.SolveRun{}, ErrNotFound
	}
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Result = res
	r.Error = errMsg
	mi, live := m.instances[r.InstanceID]
	switch {
	case !live || mi.in.Revision != r.Revision:
		r.Status = model.RunStale
		return *r, ErrStaleRevision
	case errMsg != "":
		r.Status = model.RunFailed
	default:
		r.Status = model.RunDone
	}
	return *r, nil
}

func (m *Memory) EnqueueCallback(ctx context.Context, solveID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	d := &memDelivery{
		CallbackDelivery: CallbackDelivery{
			ID:        uuid.NewString(),
			SolveID:   solveID,
			EventType: eventType,
			URL:       url,
			Secret:    secret,
			Payload:   append([]byte(nil), payload...),
			Status:    "pending",
		},
		NextAttemptAt: time.Now(),
		seq:           m.seq,
	}
	m.deliveries[d.ID] = d
	return d.ID, nil
}

func (m *Memory) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	due := []*memDelivery{}
	for _, d := range m.deliveries {
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	out := []CallbackDelivery{}
	for _, d := range due {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, d.CallbackDelivery)
	}
	return out, nil
}

func (m *Memory) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
