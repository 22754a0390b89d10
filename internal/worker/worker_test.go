package worker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/internal/filestore"
	"github.com/kiranshivaraju/gudang/internal/spreadsheet"
	"github.com/kiranshivaraju/gudang/internal/store"
	"github.com/kiranshivaraju/gudang/internal/transfer"
	"github.com/kiranshivaraju/gudang/internal/worker"
	"github.com/kiranshivaraju/gudang/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake JobQueue ---

type fakeQueue struct {
	mu      sync.Mutex
	pending []*models.Job
	settled map[uuid.UUID]*models.Job
	done    chan uuid.UUID
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{settled: map[uuid.UUID]*models.Job{}, done: make(chan uuid.UUID, 32)}
}

func (q *fakeQueue) submit(t *testing.T, p models.Payload) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	job := &models.Job{ID: uuid.New(), Kind: p.Kind(), Status: models.JobStatusWaiting, Payload: raw}
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	return job.ID
}

func (q *fakeQueue) Claim(ctx context.Context, kind models.JobKind, wait time.Duration) (*models.Job, error) {
	q.mu.Lock()
	for i, j := range q.pending {
		if j.Kind == kind {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.mu.Unlock()
			j.Status = models.JobStatusActive
			return j, nil
		}
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Complete(_ context.Context, job *models.Job, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	job.Status = models.JobStatusCompleted
	job.Result = raw
	q.settle(job)
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, job *models.Job, code, msg string) error {
	job.Status = models.JobStatusFailed
	job.ErrorCode = &code
	job.ErrorMessage = &msg
	q.settle(job)
	return nil
}

func (q *fakeQueue) settle(job *models.Job) {
	q.mu.Lock()
	q.settled[job.ID] = job
	q.mu.Unlock()
	q.done <- job.ID
}

// wait blocks until n jobs have settled and returns them by id.
func (q *fakeQueue) wait(t *testing.T, n int) map[uuid.UUID]*models.Job {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-q.done:
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d of %d jobs settled", i, n)
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[uuid.UUID]*models.Job, len(q.settled))
	for k, v := range q.settled {
		out[k] = v
	}
	return out
}

// --- in-memory InventoryStore ---

type memInventory struct {
	mu         sync.Mutex
	items      []*models.Item
	categories map[string]*models.Category
}

func newMemInventory() *memInventory {
	return &memInventory{categories: map[string]*models.Category{}}
}

func (m *memInventory) ListItemsForExport(_ context.Context, f store.ItemFilter) ([]*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Item
	for _, it := range m.items {
		if f.Name != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Category != "" && !strings.Contains(strings.ToLower(it.CategoryName()), strings.ToLower(f.Category)) {
			continue
		}
		if f.Stock != nil && it.Stock != *f.Stock {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *memInventory) FindOrCreateCategory(_ context.Context, name string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[name]; ok {
		return c, nil
	}
	c := &models.Category{ID: int64(len(m.categories) + 1), Name: name}
	m.categories[name] = c
	return c, nil
}

func (m *memInventory) CreateItem(_ context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = int64(len(m.items) + 1)
	item.CreatedAt = time.Now()
	for _, c := range m.categories {
		if item.CategoryID != nil && c.ID == *item.CategoryID {
			item.Category = c
		}
	}
	m.items = append(m.items, item)
	return nil
}

func (m *memInventory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// --- panicking Transfer ---

type panicTransfer struct{}

func (panicTransfer) Export(context.Context, models.ExportPayload) ([]*models.Item, error) {
	panic("boom")
}
func (panicTransfer) Import(context.Context, transfer.RowSource) (int, error) { panic("boom") }

// --- harness ---

type harness struct {
	queue   *fakeQueue
	inv     *memInventory
	files   *filestore.Store
	uploads string
	exports string
	svc     *transfer.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	exports := filepath.Join(root, "exports")
	files, err := filestore.New(uploads, exports)
	require.NoError(t, err)
	inv := newMemInventory()
	return &harness{
		queue:   newFakeQueue(),
		inv:     inv,
		files:   files,
		uploads: uploads,
		exports: exports,
		svc:     transfer.NewService(inv),
	}
}

// start runs n workers of kind until the test ends.
func (h *harness) start(t *testing.T, kind models.JobKind, n int, tr worker.Transfer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := worker.New(string(kind)+"-test", kind, h.queue, tr, h.files, 50*time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

// upload stores a workbook with the given rows and returns its storage name.
func (h *harness) upload(t *testing.T, items []*models.Item) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, spreadsheet.Encode(&buf, items))
	name, err := h.files.SaveUpload(&buf, "barang.xlsx")
	require.NoError(t, err)
	return name
}

func (h *harness) seed(t *testing.T, rows ...spreadsheet.Row) {
	t.Helper()
	_, err := h.svc.Import(context.Background(), &rowSlice{rows: rows})
	require.NoError(t, err)
}

type rowSlice struct {
	rows []spreadsheet.Row
	pos  int
}

func (s *rowSlice) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}
func (s *rowSlice) Row() spreadsheet.Row { return s.rows[s.pos-1] }
func (s *rowSlice) Err() error           { return nil }

func itemsFor(names ...string) []*models.Item {
	var out []*models.Item
	for i, n := range names {
		out = append(out, &models.Item{Name: n, Stock: i + 1, Category: &models.Category{Name: "Gudang"}, CreatedAt: time.Now()})
	}
	return out
}

func intPtr(i int) *int { return &i }

// --- export ---

func TestExport_RowsMatchFilteredItems(t *testing.T) {
	h := newHarness(t)
	h.seed(t,
		spreadsheet.Row{Name: "Laptop Lenovo", Stock: 5, Category: "Elektronik"},
		spreadsheet.Row{Name: "Laptop Asus", Stock: 5, Category: "Elektronik"},
		spreadsheet.Row{Name: "Laptop Bekas", Stock: 1, Category: "Elektronik"},
		spreadsheet.Row{Name: "Pulpen", Stock: 5, Category: "Alat Tulis"},
	)
	h.start(t, models.JobKindExport, 1, h.svc)

	id := h.queue.submit(t, models.ExportPayload{Query: "laptop", Category: "ELEKTRONIK", Stock: intPtr(5)})
	job := h.queue.wait(t, 1)[id]

	require.Equal(t, models.JobStatusCompleted, job.Status)
	var result models.ExportResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 2, result.Rows)
	assert.True(t, strings.HasPrefix(result.Filename, "export-barang-"), result.Filename)
	assert.Equal(t, "/exports/"+result.Filename, result.DownloadURL)

	r, err := spreadsheet.OpenFile(filepath.Join(h.exports, result.Filename))
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for r.Next() {
		names = append(names, r.Row().Name)
	}
	require.NoError(t, r.Err())
	assert.ElementsMatch(t, []string{"Laptop Lenovo", "Laptop Asus"}, names)
}

func TestExport_NoMatchFailsNotFound(t *testing.T) {
	h := newHarness(t)
	h.seed(t, spreadsheet.Row{Name: "Pulpen", Stock: 5, Category: "Alat Tulis"})
	h.start(t, models.JobKindExport, 1, h.svc)

	id := h.queue.submit(t, models.ExportPayload{Query: "printer"})
	job := h.queue.wait(t, 1)[id]

	require.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, models.JobErrNotFound, *job.ErrorCode)
	assert.Nil(t, job.Result)

	entries, err := os.ReadDir(h.exports)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// --- import ---

func TestImport_CountsAndRemovesUpload(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 1, h.svc)

	name := h.upload(t, itemsFor("Laptop", "Mouse", "Keyboard"))
	id := h.queue.submit(t, models.ImportPayload{Filename: name})
	job := h.queue.wait(t, 1)[id]

	require.Equal(t, models.JobStatusCompleted, job.Status, "error: %v", job.ErrorMessage)
	var result models.ImportResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, models.ImportResult{Imported: 3, Skipped: 0}, result)
	assert.Equal(t, 3, h.inv.count())
	assert.False(t, h.files.UploadExists(name))
}

func TestImport_MissingUploadFailsIO(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 1, h.svc)

	id := h.queue.submit(t, models.ImportPayload{Filename: "1700000000000-42.xlsx"})
	job := h.queue.wait(t, 1)[id]

	require.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, models.JobErrIO, *job.ErrorCode)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "1700000000000-42.xlsx")
}

func TestImport_CorruptUploadFailsAndIsKept(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 1, h.svc)

	name, err := h.files.SaveUpload(strings.NewReader("not a workbook"), "rusak.xlsx")
	require.NoError(t, err)
	id := h.queue.submit(t, models.ImportPayload{Filename: name})
	job := h.queue.wait(t, 1)[id]

	require.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.JobErrIO, *job.ErrorCode)
	assert.True(t, h.files.UploadExists(name))
}

func TestImport_TwiceProducesDuplicates(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 1, h.svc)
	items := itemsFor("Laptop", "Mouse")

	first := h.queue.submit(t, models.ImportPayload{Filename: h.upload(t, items)})
	second := h.queue.submit(t, models.ImportPayload{Filename: h.upload(t, items)})
	jobs := h.queue.wait(t, 2)

	assert.Equal(t, models.JobStatusCompleted, jobs[first].Status)
	assert.Equal(t, models.JobStatusCompleted, jobs[second].Status)
	assert.Equal(t, 4, h.inv.count())
}

func TestImport_ConcurrentJobsIndependentCounts(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 2, h.svc)

	small := h.queue.submit(t, models.ImportPayload{Filename: h.upload(t, itemsFor("A", "B"))})
	large := h.queue.submit(t, models.ImportPayload{Filename: h.upload(t, itemsFor("C", "D", "E", "F", "G"))})
	jobs := h.queue.wait(t, 2)

	var r1, r2 models.ImportResult
	require.NoError(t, json.Unmarshal(jobs[small].Result, &r1))
	require.NoError(t, json.Unmarshal(jobs[large].Result, &r2))
	assert.Equal(t, 2, r1.Imported)
	assert.Equal(t, 5, r2.Imported)
	assert.Equal(t, 7, h.inv.count())
}

// --- failure handling ---

func TestPanicBecomesInternalFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindExport, 1, panicTransfer{})

	first := h.queue.submit(t, models.ExportPayload{})
	second := h.queue.submit(t, models.ExportPayload{})
	jobs := h.queue.wait(t, 2)

	for _, id := range []uuid.UUID{first, second} {
		require.Equal(t, models.JobStatusFailed, jobs[id].Status)
		assert.Equal(t, models.JobErrInternal, *jobs[id].ErrorCode)
	}
}

func TestBadPayloadFailsInternal(t *testing.T) {
	h := newHarness(t)
	h.start(t, models.JobKindImport, 1, h.svc)

	job := &models.Job{ID: uuid.New(), Kind: models.JobKindImport, Payload: json.RawMessage(`[1,2]`)}
	h.queue.mu.Lock()
	h.queue.pending = append(h.queue.pending, job)
	h.queue.mu.Unlock()

	got := h.queue.wait(t, 1)[job.ID]
	require.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.JobErrInternal, *got.ErrorCode)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	w := worker.New("stop-test", models.JobKindExport, h.queue, h.svc, h.files, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
