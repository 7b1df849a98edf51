package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/data/repos"
	"github.com/yungbote/databanana-backend/internal/data/repos/testutil"
	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/pipeline"
	"github.com/yungbote/databanana-backend/internal/platform/dbctx"
	"github.com/yungbote/databanana-backend/internal/platform/mockai"
	"github.com/yungbote/databanana-backend/internal/realtime"
	"github.com/yungbote/databanana-backend/internal/realtime/bus"
)

type e2e struct {
	repos  repos.Repos
	p      *pipeline.Pipeline
	hub    *realtime.SSEHub
	blobs  *mockai.Blobs
	user   *domain.User
	policy pipeline.Policy
}

func newE2E(t *testing.T, credits int64) *e2e {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	store := NewPipelineStore(db, log, r)

	hub := realtime.NewSSEHub(log)
	b := bus.NewLocalBus()
	if err := b.StartForwarder(context.Background(), hub.Broadcast); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	batch := mockai.NewBatch(2)
	batch.Size = 32
	blobs := mockai.NewBlobs("http://cdn.test")
	policy := pipeline.DefaultPolicy()
	p, err := pipeline.New(pipeline.Deps{
		Log:      log,
		Ledger:   store,
		Jobs:     store,
		Datasets: store,
		Text:     mockai.Text{},
		Images:   batch,
		Blobs:    blobs,
		Labeler:  mockai.Labeler{},
		Notifier: NewProgressNotifier(b),
		Policy:   policy,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &e2e{repos: r, p: p, hub: hub, blobs: blobs, user: testutil.SeedUser(t, db, credits), policy: policy}
}

// run drives the steps the way the workflow does, compensating on failure.
func (e *e2e) run(t *testing.T, ctx context.Context, req pipeline.Request) pipeline.JobContext {
	t.Helper()
	jc, err := e.p.Validate(ctx, req)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	fail := func(jc pipeline.JobContext, msg string) pipeline.JobContext {
		if _, err := e.p.Compensate(ctx, pipeline.CompensationInput{
			ExecutionID: jc.ExecutionID, JobID: jc.JobID, UserID: jc.UserID,
			TotalCostCents: jc.TotalCostCents, Error: msg,
		}); err != nil {
			t.Fatalf("Compensate: %v", err)
		}
		return jc.WithStatus(pipeline.StatusFailed, msg)
	}
	if jc, err = e.p.GeneratePrompts(ctx, jc); err != nil {
		return fail(jc, err.Error())
	}
	if jc, err = e.p.SubmitJob(ctx, jc); err != nil {
		return fail(jc, err.Error())
	}
	for jc.Status == pipeline.StatusProcessing {
		if jc, err = e.p.Poll(ctx, jc); err != nil {
			return fail(jc, err.Error())
		}
		if jc.RetryCount >= e.policy.MaxPolls {
			return fail(jc, "poll budget exhausted")
		}
	}
	if jc.Status == pipeline.StatusFailed {
		return fail(jc, jc.Error)
	}
	for _, step := range []func(context.Context, pipeline.JobContext) (pipeline.JobContext, error){e.p.FetchResults, e.p.Label, e.p.Finalize} {
		if jc, err = step(ctx, jc); err != nil {
			return fail(jc, err.Error())
		}
	}
	return jc
}

func drain(ch <-chan realtime.SSEMessage) []realtime.SSEMessage {
	var out []realtime.SSEMessage
	for {
		select {
		case m := <-ch:
			out = append(out, m)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestGenerationEndToEnd(t *testing.T) {
	e := newE2E(t, 1000)
	ctx := context.Background()
	exec := pipeline.NewExecutionID(e.user.ID, time.Now(), "")
	client := e.hub.NewSSEClient(e.user.ID)
	e.hub.AddChannel(client, exec)

	jc := e.run(t, ctx, pipeline.Request{ExecutionID: exec, UserID: e.user.ID, RequestText: "a cat on a windowsill", RequestedCount: 10})
	if jc.Status != pipeline.StatusCompleted || len(jc.GeneratedItems) != 10 {
		t.Fatalf("final context: status=%s items=%d err=%s", jc.Status, len(jc.GeneratedItems), jc.Error)
	}

	dbc := dbctx.New(ctx)
	if bal, _ := e.repos.Ledger.Balance(dbc, e.user.ID); bal != 950 {
		t.Fatalf("balance: want=950 got=%d", bal)
	}
	b, err := e.repos.Batches.GetByExecutionID(dbc, exec)
	if err != nil {
		t.Fatalf("GetByExecutionID: %v", err)
	}
	if b.Status != domain.BatchStatusCompleted || b.ImageCount != 10 || b.Progress != 100 || b.ExternalJobHandle == "" {
		t.Fatalf("batch: %+v", b)
	}
	imgs, err := e.repos.Images.ListByBatch(dbc, b.ID)
	if err != nil || len(imgs) != 10 {
		t.Fatalf("images: %d %v", len(imgs), err)
	}
	if e.blobs.Len() != 10 {
		t.Fatalf("staged objects: %d", e.blobs.Len())
	}

	msgs := drain(client.Outbound)
	if len(msgs) == 0 || msgs[len(msgs)-1].Event != realtime.SSEEventGenerationCompleted {
		t.Fatalf("last event: %+v", msgs)
	}
	for _, m := range msgs[:len(msgs)-1] {
		if m.Event != realtime.SSEEventGenerationProgress {
			t.Fatalf("unexpected event before completion: %s", m.Event)
		}
	}
}

func TestCompensateAfterCommitKeepsCompletedJob(t *testing.T) {
	e := newE2E(t, 1000)
	ctx := context.Background()
	exec := pipeline.NewExecutionID(e.user.ID, time.Now(), "")

	jc := e.run(t, ctx, pipeline.Request{ExecutionID: exec, UserID: e.user.ID, RequestText: "a cat on a windowsill", RequestedCount: 10})
	if jc.Status != pipeline.StatusCompleted {
		t.Fatalf("status: %s err=%s", jc.Status, jc.Error)
	}
	client := e.hub.NewSSEClient(e.user.ID)
	e.hub.AddChannel(client, exec)

	// Finalize committed but the workflow saw the step time out.
	res, err := e.p.Compensate(ctx, pipeline.CompensationInput{
		ExecutionID: exec, JobID: jc.JobID, UserID: e.user.ID, TotalCostCents: jc.TotalCostCents, Error: "step timed out",
	})
	if err != nil || !res.AlreadyCompleted || res.Refunded || res.MarkedFailed {
		t.Fatalf("Compensate: %+v err=%v", res, err)
	}

	dbc := dbctx.New(ctx)
	if bal, _ := e.repos.Ledger.Balance(dbc, e.user.ID); bal != 950 {
		t.Fatalf("completed job was refunded: balance=%d", bal)
	}
	b, _ := e.repos.Batches.GetByExecutionID(dbc, exec)
	if b.Status != domain.BatchStatusCompleted || b.ImageCount != 10 || b.RefundedCents != 0 {
		t.Fatalf("batch: %+v", b)
	}
	imgs, err := e.repos.Images.ListByBatch(dbc, b.ID)
	if err != nil || len(imgs) != 10 {
		t.Fatalf("images: n=%d err=%v", len(imgs), err)
	}
	for _, m := range drain(client.Outbound) {
		if m.Event == realtime.SSEEventGenerationFailed {
			t.Fatalf("failure event after completion: %+v", m)
		}
	}
}

func TestGenerationFailureRefundsOnce(t *testing.T) {
	e := newE2E(t, 1000)
	ctx := context.Background()
	exec := pipeline.NewExecutionID(e.user.ID, time.Now(), "")
	client := e.hub.NewSSEClient(e.user.ID)
	e.hub.AddChannel(client, exec)

	req := pipeline.Request{ExecutionID: exec, UserID: e.user.ID, RequestText: "storm " + mockai.FailMarker, RequestedCount: 10}
	jc := e.run(t, ctx, req)
	if jc.Status != pipeline.StatusFailed {
		t.Fatalf("status: %s", jc.Status)
	}
	// A repeated compensation moves no money.
	if _, err := e.p.Compensate(ctx, pipeline.CompensationInput{ExecutionID: exec, JobID: jc.JobID, UserID: e.user.ID, TotalCostCents: 50, Error: "again"}); err != nil {
		t.Fatalf("repeat Compensate: %v", err)
	}

	dbc := dbctx.New(ctx)
	if bal, _ := e.repos.Ledger.Balance(dbc, e.user.ID); bal != 1000 {
		t.Fatalf("balance after refund: want=1000 got=%d", bal)
	}
	b, _ := e.repos.Batches.GetByExecutionID(dbc, exec)
	if b.Status != domain.BatchStatusFailed || b.RefundedCents != 50 {
		t.Fatalf("batch: %+v", b)
	}
	entries, err := e.repos.Ledger.ListByUser(dbc, e.user.ID, 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries: want debit+refund got %d", len(entries))
	}

	var failed int
	for _, m := range drain(client.Outbound) {
		if m.Event == realtime.SSEEventGenerationFailed {
			failed++
		}
	}
	if failed < 1 {
		t.Fatalf("no failure event delivered")
	}
}

func TestUserResolveCreatesOnce(t *testing.T) {
	db := testutil.DB(t)
	r := repos.New(db, testutil.Logger(t))
	svc := NewUserService(testutil.Logger(t), r.Users, 250)
	ctx := context.Background()

	a, err := svc.Resolve(ctx, "sub-1", "a@test.dev")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := svc.Resolve(ctx, "sub-1", "a@test.dev")
	if err != nil || a.ID != b.ID {
		t.Fatalf("second Resolve: %v %v", b, err)
	}
	me, err := svc.GetMe(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.CreditsCents != 250 || me.Credits != 2.5 || me.Email != "a@test.dev" {
		t.Fatalf("me: %+v", me)
	}
	_, err = svc.GetMe(ctx, uuid.New())
	wantAPIError(t, err, 404)
}

func TestReviewImageScopedToOwner(t *testing.T) {
	db := testutil.DB(t)
	r := repos.New(db, testutil.Logger(t))
	svc := NewGalleryService(testutil.Logger(t), r)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	u := testutil.SeedUser(t, db, 0)
	ds := testutil.SeedDataset(t, db, u.ID)
	b := newBatchRecord(u.ID, ds.ID, "exec-review", 50)
	if err := r.Batches.Create(dbc, b); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	img := &domain.Image{BatchID: b.ID, DatasetID: ds.ID, UserID: u.ID, Position: 0, Prompt: "p", StorageKey: "k"}
	if err := r.Images.ReplaceForBatch(dbc, b.ID, []*domain.Image{img}); err != nil {
		t.Fatalf("ReplaceForBatch: %v", err)
	}

	yes := true
	got, err := svc.ReviewImage(ctx, u.ID, img.ID, ReviewInput{Selected: &yes})
	if err != nil {
		t.Fatalf("ReviewImage: %v", err)
	}
	if !got.Selected || got.Rejected {
		t.Fatalf("review flags: %+v", got)
	}
	_, err = svc.ReviewImage(ctx, uuid.New(), img.ID, ReviewInput{Public: &yes})
	wantAPIError(t, err, 404)

	list, err := svc.ListDatasets(ctx, u.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDatasets: %v %v", list, err)
	}
}
