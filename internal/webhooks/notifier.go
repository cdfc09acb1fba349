package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"carevrp/internal/model"
	"carevrp/internal/store"
)

// Notifier queues completion callbacks for solve runs that asked for one.
type Notifier struct {
	Store store.Store
}

func NewNotifier(s store.Store) *Notifier {
	return &Notifier{Store: s}
}

// SolveDone enqueues a solve.done delivery to run.CallbackURL. Runs without
// a callback URL are ignored.
func (n *Notifier) SolveDone(ctx context.Context, run model.SolveRun) {
	if run.CallbackURL == "" {
		return
	}
	payload := map[string]any{
		"id":         "evt_" + uuid.NewString(),
		"type":       model.EventDone,
		"solveId":    run.ID,
		"instanceId": run.InstanceID,
		"revision":   run.Revision,
		"status":     run.Status,
		"ts":         time.Now().UTC().Format(time.RFC3339),
		"data":       run.Result,
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	body, _ := json.Marshal(payload)
	if _, err := n.Store.EnqueueCallback(ctx, run.ID, model.EventDone, run.CallbackURL, run.Secret, body); err != nil {
		log.Printf("webhooks: enqueue solve=%s err=%v", run.ID, err)
	}
}
