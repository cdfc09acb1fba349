// Package webhooks delivers signed solve callbacks with retries.
package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"carevrp/internal/metrics"
	"carevrp/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
}

func NewWorker(s store.Store) *Worker {
	attempts := 10
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attempts = n
		}
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: attempts}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueCallbacks(ctx, 50)
	if err != nil {
		log.Printf("webhooks: fetch due: %v", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.CallbackDelivery) {
	success := false
	code := 0
	lastErr := ""
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(EventHeader, it.EventType)
		req.Header.Set(SolveHeader, it.SolveID)
		if it.Secret != "" {
			req.Header.Set(SignatureHeader, Sign(it.Secret, it.SolveID, it.Payload, start))
		}
		var resp *http.Response
		resp, err = w.HTTP.Do(req)
		if err == nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
			success = code >= 200 && code < 300
		}
	}
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		lastErr = err.Error()
	} else if !success {
		lastErr = http.StatusText(code)
	}
	status := "delivered"
	if !success {
		status = "retry"
		if it.Attempts+1 >= w.MaxAttempts {
			status = "failed"
		}
	}
	metrics.CallbackDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.CallbackLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
	if status == "failed" {
		log.Printf("webhooks: giving up delivery=%s solve=%s attempts=%d err=%s", it.ID, it.SolveID, it.Attempts+1, lastErr)
		_ = w.Store.FailCallback(ctx, it.ID, lastErr, code, latency)
		return
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	_ = w.Store.MarkCallback(ctx, it.ID, success, &next, lastErr, code, latency)
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
