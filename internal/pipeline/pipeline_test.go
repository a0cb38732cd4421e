package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/spetr/aethersync/internal/vector"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

func TestCustomerText(t *testing.T) {
	tests := []struct {
		name string
		in   types.CustomerProfile
		want string
	}{
		{
			"no purchases",
			types.CustomerProfile{ID: 5, FirstName: "Ana", City: "Austin", State: "TX"},
			"Customer Ana from Austin, TX. This customer has no purchase history.",
		},
		{
			"with categories",
			types.CustomerProfile{ID: 1, FirstName: "John", City: "Denver", State: "CO", Categories: []string{"Electronics", "Home"}},
			"Customer John from Denver, CO. This customer primarily buys: Electronics, Home.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CustomerText(&tt.in); got != tt.want {
				t.Errorf("CustomerText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProductAndReviewText(t *testing.T) {
	p := &types.ProductProfile{Name: "Desk Lamp", Description: "A warm desk lamp.", Category: "Home", Price: "19.99"}
	if got, want := ProductText(p), "Product: Desk Lamp. Description: A warm desk lamp. Category: Home. Price: $19.99"; got != want {
		t.Errorf("ProductText() = %q, want %q", got, want)
	}

	r := &types.ReviewProfile{Text: "Love this lamp", Rating: 5}
	if got, want := ReviewText(r), "Review Text: Love this lamp Rating: 5/5"; got != want {
		t.Errorf("ReviewText() = %q, want %q", got, want)
	}
}

// memStore holds products in memory; a product is pending until committed.
type memStore struct {
	products  map[int64]*types.ProductProfile
	vectors   map[int64]string
	commits   []int // size of each committed batch
	failOnID  int64 // SetVector fails for this id
	rollbacks int
}

func newMemStore(n int) *memStore {
	s := &memStore{products: map[int64]*types.ProductProfile{}, vectors: map[int64]string{}}
	for i := 1; i <= n; i++ {
		s.products[int64(i)] = &types.ProductProfile{
			ID: int64(i), Name: fmt.Sprintf("P%d", i), Description: "d.", Category: "C", Price: "1.00",
		}
	}
	return s
}

func (s *memStore) PendingCustomers(ctx context.Context) ([]*types.CustomerProfile, error) {
	return nil, nil
}
func (s *memStore) PendingReviews(ctx context.Context) ([]*types.ReviewProfile, error) {
	return nil, nil
}
func (s *memStore) PendingProducts(ctx context.Context) ([]*types.ProductProfile, error) {
	var out []*types.ProductProfile
	for id, p := range s.products {
		if _, done := s.vectors[id]; !done {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) BeginVectorBatch(ctx context.Context, entity types.Entity) (provider.VectorBatch, error) {
	return &memBatch{store: s, staged: map[int64]string{}}, nil
}

type memBatch struct {
	store  *memStore
	staged map[int64]string
}

func (b *memBatch) SetVector(ctx context.Context, id int64, literal string) error {
	if id == b.store.failOnID {
		return &types.PersistenceError{Store: "relational", Op: "update", Err: errors.New("disk full")}
	}
	b.staged[id] = literal
	return nil
}

func (b *memBatch) Commit() error {
	for id, lit := range b.staged {
		b.store.vectors[id] = lit
	}
	b.store.commits = append(b.store.commits, len(b.staged))
	return nil
}

func (b *memBatch) Rollback() error {
	b.store.rollbacks++
	return nil
}

// stubEmbedder returns a fixed vector and fails for chosen profile texts.
type stubEmbedder struct {
	fail  map[string]error
	calls int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	e.calls++
	if role != types.RoleDocument {
		return nil, errors.New("pipeline must embed documents")
	}
	if err := e.fail[text]; err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func productText(id int) string {
	return ProductText(&types.ProductProfile{Name: fmt.Sprintf("P%d", id), Description: "d.", Category: "C", Price: "1.00"})
}

func TestRunCommitsInBatches(t *testing.T) {
	store := newMemStore(25)
	emb := &stubEmbedder{}
	var last Progress
	p := New(Config{Source: store, Writer: store, Embedder: emb, OnProgress: func(pr Progress) { last = pr }})

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(store.commits) != "[10 10 5]" {
		t.Errorf("commits = %v, want [10 10 5]", store.commits)
	}
	if rep.Selected != 25 || rep.Embedded != 25 || rep.Persisted != 25 || len(rep.FailedIDs) != 0 {
		t.Errorf("report = %+v", rep)
	}
	if last.Processed != 25 || last.Total != 25 {
		t.Errorf("last progress = %+v", last)
	}

	want, _ := vector.Encode([]float32{0.1, 0.2, 0.3})
	if store.vectors[7] != want {
		t.Errorf("vector literal = %q, want %q", store.vectors[7], want)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := newMemStore(12)
	emb := &stubEmbedder{}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	if _, err := p.Run(context.Background(), types.EntityProduct); err != nil {
		t.Fatal(err)
	}
	calls := emb.calls

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Selected != 0 || emb.calls != calls {
		t.Errorf("second run selected %d and made %d calls", rep.Selected, emb.calls-calls)
	}
}

func TestRunSkipsFailedEmbeddings(t *testing.T) {
	store := newMemStore(5)
	emb := &stubEmbedder{fail: map[string]error{
		productText(2): &types.ProviderError{Provider: "stub", Class: types.Retryable, StatusCode: 429, Err: errors.New("quota")},
		productText(4): &types.ProviderError{Provider: "stub", Class: types.Fatal, StatusCode: 400, Err: errors.New("too long")},
	}}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(rep.FailedIDs) != "[2 4]" {
		t.Errorf("FailedIDs = %v, want [2 4]", rep.FailedIDs)
	}
	if rep.Persisted != 3 {
		t.Errorf("Persisted = %d, want 3", rep.Persisted)
	}

	// Only the failed rows are left for the next run.
	pending, _ := store.PendingProducts(context.Background())
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestRunAbortsOnPersistenceFailureAndResumes(t *testing.T) {
	store := newMemStore(25)
	store.failOnID = 15
	emb := &stubEmbedder{}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if !errors.Is(err, types.ErrPersistence) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if rep.Persisted != 10 || len(store.vectors) != 10 || store.rollbacks != 1 {
		t.Errorf("persisted = %d, stored = %d, rollbacks = %d", rep.Persisted, len(store.vectors), store.rollbacks)
	}

	store.failOnID = 0
	calls := emb.calls
	rep, err = p.Run(context.Background(), types.EntityProduct)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if rep.Selected != 15 || emb.calls-calls != 15 || len(store.vectors) != 25 {
		t.Errorf("resume selected %d, calls %d, stored %d", rep.Selected, emb.calls-calls, len(store.vectors))
	}
}

func TestRunAbortsOnRejectedCredential(t *testing.T) {
	store := newMemStore(15)
	emb := &stubEmbedder{fail: map[string]error{
		productText(12): &types.ProviderError{Provider: "stub", Class: types.Fatal, StatusCode: 401, Credential: true, Err: errors.New("bad key")},
	}}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if !errors.Is(err, types.ErrProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	// 10 committed at the boundary, 11 committed on abort.
	if rep.Persisted != 11 || emb.calls != 12 {
		t.Errorf("persisted = %d, calls = %d", rep.Persisted, emb.calls)
	}
	if fmt.Sprint(rep.FailedIDs) != "[12]" {
		t.Errorf("FailedIDs = %v", rep.FailedIDs)
	}
}

func TestRunDeclined(t *testing.T) {
	store := newMemStore(3)
	emb := &stubEmbedder{}
	var asked string
	p := New(Config{
		Source:   store,
		Writer:   store,
		Embedder: emb,
		Confirm: func(ctx context.Context, msg string) (bool, error) {
			asked = msg
			return false, nil
		},
	})

	rep, err := p.Run(context.Background(), types.EntityProduct)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Declined || emb.calls != 0 || len(store.commits) != 0 {
		t.Errorf("declined run mutated state: %+v, calls %d", rep, emb.calls)
	}
	if asked != "Embed 3 pending product rows?" {
		t.Errorf("prompt = %q", asked)
	}
}

func TestRunCancelledCommitsStaged(t *testing.T) {
	store := newMemStore(8)
	ctx, cancel := context.WithCancel(context.Background())
	emb := &cancellingEmbedder{after: 3, cancel: cancel}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	_, err := p.Run(ctx, types.EntityProduct)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(store.vectors) != 3 {
		t.Errorf("stored = %d, want the 3 embedded before cancel", len(store.vectors))
	}
}

func TestRunInterruptedCallIsNotAFailure(t *testing.T) {
	store := newMemStore(8)
	ctx, cancel := context.WithCancel(context.Background())
	emb := &interruptedEmbedder{at: 3, cancel: cancel}
	p := New(Config{Source: store, Writer: store, Embedder: emb})

	rep, err := p.Run(ctx, types.EntityProduct)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rep.FailedIDs) != 0 {
		t.Errorf("FailedIDs = %v, want none for an interrupted call", rep.FailedIDs)
	}
	if len(store.vectors) != 2 || rep.Persisted != 2 {
		t.Errorf("stored = %d, persisted = %d, want 2", len(store.vectors), rep.Persisted)
	}
}

// interruptedEmbedder cancels during call at and fails it the way an HTTP
// client does when its request context goes away.
type interruptedEmbedder struct {
	at     int
	calls  int
	cancel context.CancelFunc
}

func (e *interruptedEmbedder) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	e.calls++
	if e.calls == e.at {
		e.cancel()
		return nil, &types.ProviderError{Provider: "stub", Class: types.Retryable, Err: ctx.Err()}
	}
	return []float32{1, 0}, nil
}

type cancellingEmbedder struct {
	after  int
	calls  int
	cancel context.CancelFunc
}

func (e *cancellingEmbedder) Embed(ctx context.Context, text string, role types.EmbeddingRole) ([]float32, error) {
	e.calls++
	if e.calls == e.after {
		e.cancel()
	}
	return []float32{1, 0}, nil
}
