package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/data/repos/testutil"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
)

func newBatchRecord(userID, datasetID uuid.UUID, exec string, cost int64) *domain.Batch {
	return &domain.Batch{
		ExecutionID:    exec,
		UserID:         userID,
		DatasetID:      datasetID,
		RequestText:    "red apples",
		RequestedCount: 10,
		CostCents:      cost,
		Status:         domain.BatchStatusProcessing,
		Step:           "ValidateAndSetup",
		Progress:       10,
	}
}

func TestReserveDebitsAndCreatesTogether(t *testing.T) {
	db := testutil.DB(t)
	r := repos.New(db, testutil.Logger(t))
	store := NewPipelineStore(db, testutil.Logger(t), r)
	ctx := context.Background()
	u := testutil.SeedUser(t, db, 100)
	ds := testutil.SeedDataset(t, db, u.ID)

	if err := store.Reserve(ctx, newBatchRecord(u.ID, ds.ID, "exec-a", 50), "debit:exec-a"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if bal, _ := store.Balance(ctx, u.ID); bal != 50 {
		t.Fatalf("balance after reserve: want=50 got=%d", bal)
	}

	// Second reservation under the same debit key rolls back the new record.
	if err := store.Reserve(ctx, newBatchRecord(u.ID, ds.ID, "exec-b", 50), "debit:exec-a"); err == nil {
		t.Fatalf("expected error for reused debit key")
	}
	if _, err := store.GetJobByExecutionID(ctx, "exec-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("exec-b should not exist, got %v", err)
	}

	err := store.Reserve(ctx, newBatchRecord(u.ID, ds.ID, "exec-c", 500), "debit:exec-c")
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}
	if _, err := store.GetJobByExecutionID(ctx, "exec-c"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("exec-c should not exist, got %v", err)
	}
	if bal, _ := store.Balance(ctx, u.ID); bal != 50 {
		t.Fatalf("balance changed by failed reservations: %d", bal)
	}
}

func TestReserveRejectsNonPositiveCost(t *testing.T) {
	db := testutil.DB(t)
	store := NewPipelineStore(db, testutil.Logger(t), repos.New(db, testutil.Logger(t)))
	err := store.Reserve(context.Background(), &domain.Batch{}, "debit:x")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestFinalizeHappensOnce(t *testing.T) {
	db := testutil.DB(t)
	r := repos.New(db, testutil.Logger(t))
	store := NewPipelineStore(db, testutil.Logger(t), r)
	ctx := context.Background()
	u := testutil.SeedUser(t, db, 100)
	ds := testutil.SeedDataset(t, db, u.ID)
	rec := newBatchRecord(u.ID, ds.ID, "exec-f", 50)
	if err := store.Reserve(ctx, rec, "debit:exec-f"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	images := func(n int) []*domain.Image {
		out := make([]*domain.Image, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, &domain.Image{BatchID: rec.ID, DatasetID: ds.ID, UserID: u.ID, Position: i, Prompt: "p", StorageKey: "k"})
		}
		return out
	}
	ok, err := store.Finalize(ctx, rec.ID, "Completed", images(2))
	if err != nil || !ok {
		t.Fatalf("first Finalize: ok=%v err=%v", ok, err)
	}
	ok, err = store.Finalize(ctx, rec.ID, "Completed", images(5))
	if err != nil || ok {
		t.Fatalf("second Finalize: ok=%v err=%v", ok, err)
	}
	got, err := r.Images.ListByBatch(dbctx.New(ctx), rec.ID)
	if err != nil {
		t.Fatalf("ListByBatch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("images after rejected finalize: want=2 got=%d", len(got))
	}

	if marked, err := store.FailJob(ctx, rec.ID, "Failed", "late"); err != nil || marked {
		t.Fatalf("FailJob on completed job: marked=%v err=%v", marked, err)
	}
}

func TestResolveDataset(t *testing.T) {
	db := testutil.DB(t)
	store := NewPipelineStore(db, testutil.Logger(t), repos.New(db, testutil.Logger(t)))
	ctx := context.Background()
	u := testutil.SeedUser(t, db, 0)
	other := testutil.SeedUser(t, db, 0)
	foreign := testutil.SeedDataset(t, db, other.ID)
	own := testutil.SeedDataset(t, db, u.ID)

	id, err := store.ResolveDataset(ctx, u.ID, &own.ID, "ignored")
	if err != nil || id != own.ID {
		t.Fatalf("own dataset: id=%s err=%v", id, err)
	}
	if _, err := store.ResolveDataset(ctx, u.ID, &foreign.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign dataset: want ErrNotFound got %v", err)
	}
	created, err := store.ResolveDataset(ctx, u.ID, nil, "  ")
	if err != nil || created == uuid.Nil {
		t.Fatalf("create dataset: id=%s err=%v", created, err)
	}
	var ds domain.Dataset
	if err := db.First(&ds, "id = ?", created).Error; err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	if ds.Name != "Untitled dataset" || ds.UserID != u.ID {
		t.Fatalf("created dataset: %+v", ds)
	}
}
