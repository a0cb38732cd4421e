package syncer

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spetr/aethersync/internal/docstore"
	"github.com/spetr/aethersync/internal/relational"
	"github.com/spetr/aethersync/internal/schema"
	"github.com/spetr/aethersync/internal/testutil"
	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

func newTestQueue(t *testing.T) *relational.Store {
	t.Helper()
	ctx := context.Background()
	s, err := relational.Open(ctx, relational.Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "aethermart.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	testutil.Seed(t, s.DB())

	g := schema.New(s, 3, types.AlwaysConfirm)
	for _, e := range types.AllEntities() {
		if _, err := g.EnsureQueue(ctx, e); err != nil {
			t.Fatalf("EnsureQueue(%s): %v", e, err)
		}
	}
	return s
}

func jobStatus(t *testing.T, db *sql.DB, table string, queueID int64) (string, string) {
	t.Helper()
	var status string
	var lastErr sql.NullString
	if err := db.QueryRow("SELECT sync_status, last_error FROM "+table+" WHERE queue_id = ?", queueID).Scan(&status, &lastErr); err != nil {
		t.Fatal(err)
	}
	return status, lastErr.String
}

func TestDrainContinuesPastFailedJob(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	ctx := context.Background()

	_, err := store.DB().Exec(`INSERT INTO product_sync_queue (product_id, product_name, price) VALUES
		(1, 'Desk Lamp', '19.99'), (2, 'Headphones', 'abc'), (3, 'Mystery Novel', 12.00)`)
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{Queue: store, Documents: docs, WorkerID: "w1"})
	rep, err := s.Drain(ctx, types.EntityProduct)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Selected != 3 || rep.Completed != 2 || rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.FailedJobs) != 1 || rep.FailedJobs[0] != 2 {
		t.Errorf("FailedJobs = %v", rep.FailedJobs)
	}

	for id, want := range map[int64]string{1: "COMPLETED", 2: "FAILED", 3: "COMPLETED"} {
		status, lastErr := jobStatus(t, store.DB(), "product_sync_queue", id)
		if status != want {
			t.Errorf("job %d = %s, want %s", id, status, want)
		}
		if want == "FAILED" && lastErr == "" {
			t.Errorf("job %d has no last_error", id)
		}
	}

	lamp := docs.Find("product_catalog", "product_id_sql", 1)
	if lamp == nil || lamp["price"] != 19.99 || lamp["name"] != "Desk Lamp" {
		t.Errorf("product 1 = %v", lamp)
	}
	if docs.Find("product_catalog", "product_id_sql", 2) != nil {
		t.Error("failed job wrote a document")
	}
	if _, ok := lamp["last_synced_at"].(time.Time); !ok {
		t.Error("last_synced_at not set")
	}
	if docs.Count("product_catalog") != 2 {
		t.Errorf("documents = %d, want 2", docs.Count("product_catalog"))
	}

	// Nothing left to do.
	rep, err = s.Drain(ctx, types.EntityProduct)
	if err != nil || rep.Selected != 0 {
		t.Errorf("second drain = %+v, %v", rep, err)
	}
}

func TestDrainKeepsEnrichment(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	docs.Insert("product_catalog", map[string]any{
		"product_id_sql": int64(1),
		"name":           "Old Lamp",
		"specifications": map[string]any{"color": "red"},
		"reviews_count":  int64(12),
	})
	store.DB().Exec(`INSERT INTO product_sync_queue (product_id, product_name, price) VALUES (1, 'Desk Lamp', 21.50)`)

	s := New(Config{Queue: store, Documents: docs})
	if _, err := s.Drain(context.Background(), types.EntityProduct); err != nil {
		t.Fatal(err)
	}

	doc := docs.Find("product_catalog", "product_id_sql", 1)
	if doc["name"] != "Desk Lamp" || doc["price"] != 21.50 {
		t.Errorf("mapped fields = %v / %v", doc["name"], doc["price"])
	}
	if spec := doc["specifications"].(map[string]any); spec["color"] != "red" {
		t.Errorf("specifications overwritten: %v", spec)
	}
	if doc["reviews_count"] != int64(12) {
		t.Errorf("unmapped field touched: %v", doc["reviews_count"])
	}
}

func TestDrainReleasesExpiredClaims(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	ctx := context.Background()
	store.DB().Exec(`INSERT INTO customer_sync_queue (customer_id, first_name, last_name, city, state, zipcode)
		VALUES (5, 'Ana', 'Lopez', 'Austin', 'TX', ' 73301 ')`)

	if ok, err := store.ClaimJob(ctx, types.EntityCustomer, 1, "crashed"); !ok || err != nil {
		t.Fatalf("claim = %v, %v", ok, err)
	}

	s := New(Config{
		Queue:        store,
		Documents:    docs,
		LeaseTimeout: 10 * time.Minute,
		Now:          func() time.Time { return time.Now().Add(time.Hour) },
	})
	rep, err := s.Drain(ctx, types.EntityCustomer)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Released != 1 || rep.Completed != 1 {
		t.Errorf("report = %+v", rep)
	}

	doc := docs.Find("customer_profiles", "customer_id_sql", 5)
	if doc["full_name"] != "Ana Lopez" {
		t.Errorf("full_name = %v", doc["full_name"])
	}
	if loc := doc["location"].(map[string]any); loc["zip"] != "73301" {
		t.Errorf("location = %v", loc)
	}
}

// contendedQueue loses the claim race for the listed jobs.
type contendedQueue struct {
	provider.QueueStore
	lost map[int64]bool
}

func (q *contendedQueue) ClaimJob(ctx context.Context, queue types.Entity, queueID int64, owner string) (bool, error) {
	if q.lost[queueID] {
		return false, nil
	}
	return q.QueueStore.ClaimJob(ctx, queue, queueID, owner)
}

func TestDrainSkipsJobsClaimedElsewhere(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	store.DB().Exec(`INSERT INTO review_sync_queue (review_id, customer_id, product_id, rating, review_text, review_date)
		VALUES (1, 1, 1, 5, 'Love this lamp', '2024-01-20'), (4, 2, 1, 4, 'Bright and sturdy', '2024-03-06')`)

	s := New(Config{Queue: &contendedQueue{QueueStore: store, lost: map[int64]bool{1: true}}, Documents: docs})
	rep, err := s.Drain(context.Background(), types.EntityReview)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 1 || rep.Completed != 1 {
		t.Errorf("report = %+v", rep)
	}
	doc := docs.Find("reviews", "review_id_sql", 4)
	if doc == nil || doc["rating"] != 4.0 || doc["upvotes"] != 0 {
		t.Errorf("review 4 = %v", doc)
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	s := New(Config{Queue: store, Documents: docs})
	ctx := context.Background()

	rep, err := s.Backfill(ctx, types.EntityReview)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rows != 4 || rep.Inserted != 4 {
		t.Errorf("first backfill = %+v", rep)
	}

	rep, err = s.Backfill(ctx, types.EntityReview)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Inserted != 0 || rep.Updated != 4 || docs.Count("reviews") != 4 {
		t.Errorf("second backfill = %+v, documents = %d", rep, docs.Count("reviews"))
	}

	doc := docs.Find("reviews", "review_id_sql", 2)
	if doc["customer_id_sql"] != int64(1) || doc["product_id_sql"] != int64(2) {
		t.Errorf("review 2 = %v", doc)
	}
}

func TestBackfillWritesLoadOnlyFields(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	s := New(Config{Queue: store, Documents: docs})
	ctx := context.Background()

	if _, err := store.DB().Exec(`INSERT INTO Products (product_id, product_name, price) VALUES (9, 'Gift Card', 25.00)`); err != nil {
		t.Fatal(err)
	}

	rep, err := s.Backfill(ctx, types.EntityProduct)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rows != 5 || len(rep.FailedIDs) != 0 {
		t.Errorf("product backfill = %+v", rep)
	}

	tests := []struct {
		id       int64
		category string
		rating   any
	}{
		{1, "Home", 4.5},
		{2, "Electronics", 2.0},
		{3, "Books", nil},
		{9, "Uncategorized", nil},
	}
	for _, tt := range tests {
		doc := docs.Find("product_catalog", "product_id_sql", tt.id)
		if doc == nil {
			t.Fatalf("product %d missing", tt.id)
		}
		if doc["category"] != tt.category {
			t.Errorf("product %d category = %v, want %s", tt.id, doc["category"], tt.category)
		}
		if doc["sql_current_rating"] != tt.rating {
			t.Errorf("product %d sql_current_rating = %v, want %v", tt.id, doc["sql_current_rating"], tt.rating)
		}
	}

	// A queue update leaves the loaded category alone.
	store.DB().Exec(`INSERT INTO product_sync_queue (product_id, product_name, price) VALUES (1, 'Desk Lamp', 17.99)`)
	if _, err := s.Drain(ctx, types.EntityProduct); err != nil {
		t.Fatal(err)
	}
	if doc := docs.Find("product_catalog", "product_id_sql", 1); doc["category"] != "Home" || doc["price"] != 17.99 {
		t.Errorf("product 1 after drain = %v", doc)
	}

	if _, err := s.Backfill(ctx, types.EntityCustomer); err != nil {
		t.Fatal(err)
	}
	ana := docs.Find("customer_profiles", "customer_id_sql", 5)
	want := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
	if got, ok := ana["registration_date"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("registration_date = %v, want %v", ana["registration_date"], want)
	}
}

// cloneDoc deep-copies a document so later upserts cannot change it.
func cloneDoc(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneDoc(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneDoc(e)
		}
		return out
	}
	return v
}

func TestDrainSameJobTwice(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	ctx := context.Background()
	store.DB().Exec(`INSERT INTO product_sync_queue (product_id, product_name, price) VALUES (101, 'Travel Mug', '19.99')`)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{
		Queue:     store,
		Documents: docs,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})

	if rep, err := s.Drain(ctx, types.EntityProduct); err != nil || rep.Completed != 1 {
		t.Fatalf("first drain = %+v, %v", rep, err)
	}
	first := cloneDoc(docs.Find("product_catalog", "product_id_sql", 101)).(map[string]any)

	if _, err := store.DB().Exec(`UPDATE product_sync_queue SET sync_status = 'PENDING', claimed_by = NULL, claimed_at = NULL WHERE queue_id = 1`); err != nil {
		t.Fatal(err)
	}
	if rep, err := s.Drain(ctx, types.EntityProduct); err != nil || rep.Completed != 1 {
		t.Fatalf("second drain = %+v, %v", rep, err)
	}
	second := cloneDoc(docs.Find("product_catalog", "product_id_sql", 101)).(map[string]any)

	if docs.Count("product_catalog") != 1 {
		t.Errorf("documents = %d, want 1", docs.Count("product_catalog"))
	}
	if first["last_synced_at"] == second["last_synced_at"] {
		t.Error("last_synced_at not refreshed")
	}
	delete(first, "last_synced_at")
	delete(second, "last_synced_at")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("document changed:\nfirst  %v\nsecond %v", first, second)
	}
	if second["price"] != 19.99 {
		t.Errorf("price = %v", second["price"])
	}
}

func TestRequeue(t *testing.T) {
	store := newTestQueue(t)
	docs := docstore.NewMemory()
	ctx := context.Background()
	store.DB().Exec(`INSERT INTO product_sync_queue (product_id, product_name, price) VALUES (2, 'Headphones', 'abc')`)

	s := New(Config{Queue: store, Documents: docs})
	if rep, _ := s.Drain(ctx, types.EntityProduct); rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}

	store.DB().Exec(`UPDATE product_sync_queue SET price = 89.50 WHERE queue_id = 1`)
	n, err := s.Requeue(ctx, types.EntityProduct)
	if err != nil || n != 1 {
		t.Fatalf("Requeue = %d, %v", n, err)
	}

	rep, err := s.Drain(ctx, types.EntityProduct)
	if err != nil || rep.Completed != 1 {
		t.Errorf("drain after requeue = %+v, %v", rep, err)
	}
}

func TestNewGeneratesWorkerID(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	if a.WorkerID() == "" || a.WorkerID() == b.WorkerID() {
		t.Errorf("worker ids %q and %q", a.WorkerID(), b.WorkerID())
	}
}
