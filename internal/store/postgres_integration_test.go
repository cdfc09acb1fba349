//go:build postgres_integration

package store

import (
	"errors"
	"os"
	"testing"

	"carevrp/internal/vrp"
)

func TestPostgresLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	ctx := t.Context()
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	exerciseStore(t, p)
	if _, err := p.ClaimSolves(ctx, 100); err != nil {
		t.Fatalf("ClaimSolves: %v", err)
	}
	rec, err := p.CreateInstance(ctx, sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.EditInstance(ctx, rec.ID, func(in *vrp.Instance) error { return errors.New("rejected") }); err == nil {
		t.Fatal("edit error must abort the transaction")
	}
	got, _ := p.GetInstance(ctx, rec.ID)
	if got.Revision != 0 {
		t.Fatalf("aborted edit persisted revision %d", got.Revision)
	}
	_ = p.DeleteInstance(ctx, rec.ID)
}
