package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type memLedger struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]int64
	keys      map[string]bool
	creditErr error
}

func newMemLedger() *memLedger {
	return &memLedger{balances: map[uuid.UUID]int64{}, keys: map[string]bool{}}
}

func (l *memLedger) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return b, nil
}

func (l *memLedger) apply(userID uuid.UUID, cents int64, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keys[key] {
		return false, nil
	}
	b, ok := l.balances[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b+cents < 0 {
		return false, domain.ErrInsufficientBalance
	}
	l.balances[userID] = b + cents
	l.keys[key] = true
	return true, nil
}

func (l *memLedger) Credit(_ context.Context, userID uuid.UUID, cents int64, key string) (bool, error) {
	if l.creditErr != nil {
		return false, l.creditErr
	}
	return l.apply(userID, cents, key)
}

func (l *memLedger) balance(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

type memJobs struct {
	mu       sync.Mutex
	ledger   *memLedger
	byExec   map[string]*domain.Batch
	byID     map[uuid.UUID]*domain.Batch
	images   map[uuid.UUID][]*domain.Image
	progress []int
	failJobs int
	failErr  error
	finalErr error
}

func newMemJobs(l *memLedger) *memJobs {
	return &memJobs{
		ledger: l,
		byExec: map[string]*domain.Batch{},
		byID:   map[uuid.UUID]*domain.Batch{},
		images: map[uuid.UUID][]*domain.Image{},
	}
}

func (m *memJobs) Reserve(_ context.Context, rec *domain.Batch, debitKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byExec[rec.ExecutionID]; ok {
		return errors.New("duplicate execution id")
	}
	if _, err := m.ledger.apply(rec.UserID, -rec.CostCents, debitKey); err != nil {
		return err
	}
	cp := *rec
	m.byExec[rec.ExecutionID] = &cp
	m.byID[rec.ID] = &cp
	m.progress = append(m.progress, rec.Progress)
	return nil
}

func (m *memJobs) GetJobByExecutionID(_ context.Context, executionID string) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byExec[executionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memJobs) UpdateProgress(_ context.Context, jobID uuid.UUID, step string, progress int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != domain.BatchStatusProcessing {
		return nil
	}
	b.Step = step
	if progress > b.Progress {
		b.Progress = progress
	}
	if errMsg != "" {
		b.Error = errMsg
	}
	m.progress = append(m.progress, b.Progress)
	return nil
}

func (m *memJobs) SetExternalHandle(_ context.Context, jobID uuid.UUID, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byID[jobID]; ok {
		b.ExternalJobHandle = handle
	}
	return nil
}

func (m *memJobs) Finalize(_ context.Context, jobID uuid.UUID, step string, images []*domain.Image) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalErr != nil {
		return false, m.finalErr
	}
	b, ok := m.byID[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Status != domain.BatchStatusProcessing {
		return false, nil
	}
	m.images[jobID] = images
	b.Status = domain.BatchStatusCompleted
	b.Step = step
	b.Progress = 100
	b.ImageCount = len(images)
	m.progress = append(m.progress, 100)
	return true, nil
}

func (m *memJobs) FailJob(_ context.Context, jobID uuid.UUID, step, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failJobs++
	if m.failErr != nil {
		return false, m.failErr
	}
	b, ok := m.byID[jobID]
	if !ok || b.Status != domain.BatchStatusProcessing {
		return false, nil
	}
	b.Status = domain.BatchStatusFailed
	b.Step = step
	b.Error = errMsg
	return true, nil
}

func (m *memJobs) RecordRefund(_ context.Context, jobID uuid.UUID, cents int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[jobID]
	if !ok || b.Status != domain.BatchStatusFailed || b.RefundedCents != 0 {
		return false, nil
	}
	b.RefundedCents = cents
	return true, nil
}

func (m *memJobs) job(execID string) *domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.byExec[execID]
	return &cp
}

type memDatasets struct{ known map[uuid.UUID]uuid.UUID }

func (d *memDatasets) ResolveDataset(_ context.Context, userID uuid.UUID, datasetID *uuid.UUID, _ string) (uuid.UUID, error) {
	if datasetID == nil {
		return uuid.New(), nil
	}
	if owner, ok := d.known[*datasetID]; ok && owner == userID {
		return *datasetID, nil
	}
	return uuid.Nil, domain.ErrNotFound
}

type fakeText struct {
	out string
	err error
}

func (f *fakeText) GenerateText(context.Context, string, string) (string, error) {
	return f.out, f.err
}

type fakeBatch struct {
	mu         sync.Mutex
	submitErr  error
	states     []string
	describeEr error
	inline     []BatchResult
	file       string
	fileData   []BatchResult
	submitted  [][]string
	describes  int
}

func (f *fakeBatch) Submit(_ context.Context, _ string, prompts []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, prompts)
	return "batches/fake-1", nil
}

func (f *fakeBatch) Describe(_ context.Context, handle string) (BatchDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describes++
	if f.describeEr != nil {
		return BatchDescriptor{}, f.describeEr
	}
	state := "BATCH_STATE_SUCCEEDED"
	if len(f.states) > 0 {
		state = f.states[0]
		if len(f.states) > 1 {
			f.states = f.states[1:]
		}
	}
	return BatchDescriptor{Handle: handle, State: state, Inline: f.inline, ResultsFile: f.file}, nil
}

func (f *fakeBatch) ReadResultsFile(_ context.Context, file string) ([]BatchResult, error) {
	if file != f.file {
		return nil, fmt.Errorf("unknown file %s", file)
	}
	return f.fileData, nil
}

type memBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objs: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objs[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.objs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (b *memBlobs) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blobs.test/" + key + "?ttl=" + ttl.String(), nil
}

type fakeLabeler struct {
	mu     sync.Mutex
	failOn map[int]bool
	calls  int
}

func (f *fakeLabeler) DetectLabels(_ context.Context, data []byte, _ string) (LabelResult, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return LabelResult{}, err
	}
	if f.failOn[cfg.Width] || f.failOn[-1] {
		return LabelResult{}, fmt.Errorf("vision quota exceeded (call %d)", n)
	}
	return LabelResult{
		Labels: []Label{
			{Name: "Fruit", Confidence: 0.91},
			{Name: "Apple", Confidence: 0.98},
			{Name: "Food", Confidence: 0.88},
			{Name: "Red", Confidence: 0.80},
			{Name: "Plant", Confidence: 0.77},
			{Name: "Table", Confidence: 0.71},
		},
		Boxes: []BoundingBox{{Label: "Apple", Confidence: 0.9, Left: 0.1, Top: 0.1, Width: 0.5, Height: 0.5}},
	}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ProgressEvent
	err    error
}

func (n *recordingNotifier) Push(_ context.Context, ev ProgressEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) last() ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ProgressEvent{}
	}
	return n.events[len(n.events)-1]
}

// pngOfWidth renders a tiny PNG whose width doubles as an identifier.
func pngOfWidth(t testing.TB, w int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, 4))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func inlineResults(t testing.TB, n int) []BatchResult {
	out := make([]BatchResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, BatchResult{Index: i, Data: pngOfWidth(t, i+1), MimeType: "image/png"})
	}
	return out
}

type harness struct {
	p        *Pipeline
	ledger   *memLedger
	jobs     *memJobs
	text     *fakeText
	batch    *fakeBatch
	blobs    *memBlobs
	labeler  *fakeLabeler
	notifier *recordingNotifier
	userID   uuid.UUID
}

func newHarness(t *testing.T, balance int64) *harness {
	t.Helper()
	h := &harness{
		ledger:   newMemLedger(),
		text:     &fakeText{},
		batch:    &fakeBatch{},
		blobs:    newMemBlobs(),
		labeler:  &fakeLabeler{failOn: map[int]bool{}},
		notifier: &recordingNotifier{},
		userID:   uuid.New(),
	}
	h.ledger.balances[h.userID] = balance
	h.jobs = newMemJobs(h.ledger)
	p, err := New(Deps{
		Log:      logger.Nop(),
		Ledger:   h.ledger,
		Jobs:     h.jobs,
		Datasets: &memDatasets{known: map[uuid.UUID]uuid.UUID{}},
		Text:     h.text,
		Images:   h.batch,
		Blobs:    h.blobs,
		Labeler:  h.labeler,
		Notifier: h.notifier,
		Policy:   DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.p = p
	return h
}

func (h *harness) request(count int) Request {
	return Request{
		ExecutionID:    NewExecutionID(h.userID, time.Now(), ""),
		UserID:         h.userID,
		RequestText:    "red apples",
		Exclusions:     []string{"people"},
		RequestedCount: count,
	}
}
