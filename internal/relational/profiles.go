package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// PendingCustomers returns customers without a vector, ordered by id, with
// the distinct category names of everything they ordered. Customers without
// orders are included with no categories.
func (s *Store) PendingCustomers(ctx context.Context) ([]*types.CustomerProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, first_name, last_name, city, state
		FROM Customers
		WHERE customer_embedding IS NULL
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, fmt.Errorf("select pending customers: %w", err)
	}
	defer rows.Close()

	var (
		profiles []*types.CustomerProfile
		byID     = make(map[int64]*types.CustomerProfile)
	)
	for rows.Next() {
		var (
			p                        types.CustomerProfile
			first, last, city, state sql.NullString
		)
		if err := rows.Scan(&p.ID, &first, &last, &city, &state); err != nil {
			return nil, err
		}
		p.FirstName = strings.TrimSpace(first.String)
		p.LastName = strings.TrimSpace(last.String)
		p.City = strings.TrimSpace(city.String)
		p.State = strings.TrimSpace(state.String)
		profiles = append(profiles, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	cats, err := s.customerCategories(ctx, "c.customer_embedding IS NULL")
	if err != nil {
		return nil, err
	}
	for id, names := range cats {
		if p, ok := byID[id]; ok {
			p.Categories = names
		}
	}
	return profiles, nil
}

// customerCategories returns sorted distinct purchased category names per
// customer, for the customers matching where (over alias c) and args.
func (s *Store) customerCategories(ctx context.Context, where string, args ...any) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.customer_id, cat.category_name
		FROM Customers c
		JOIN Orders o ON o.customer_id = c.customer_id
		JOIN Order_Items oi ON oi.order_id = o.order_id
		JOIN Products p ON p.product_id = oi.product_id
		JOIN Categories cat ON cat.category_id = p.category_id
		WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select customer categories: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			id   int64
			name sql.NullString
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if n := strings.TrimSpace(name.String); n != "" {
			out[id] = append(out[id], n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for id := range out {
		sort.Strings(out[id])
		out[id] = dedupSorted(out[id])
	}
	return out, nil
}

func dedupSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// PendingProducts returns described products without a vector. Products
// without a category are described as "Uncategorized".
func (s *Store) PendingProducts(ctx context.Context) ([]*types.ProductProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_id, p.product_name, p.product_description,
			COALESCE(c.category_name, 'Uncategorized'), p.price
		FROM Products p
		LEFT JOIN Categories c ON c.category_id = p.category_id
		WHERE p.product_embedding IS NULL
			AND p.product_description IS NOT NULL
			AND p.product_description != ''
		ORDER BY p.product_id
	`)
	if err != nil {
		return nil, fmt.Errorf("select pending products: %w", err)
	}
	defer rows.Close()

	var profiles []*types.ProductProfile
	for rows.Next() {
		var (
			p                 types.ProductProfile
			name, desc, price sql.NullString
		)
		if err := rows.Scan(&p.ID, &name, &desc, &p.Category, &price); err != nil {
			return nil, err
		}
		p.Name = strings.TrimSpace(name.String)
		p.Description = strings.TrimSpace(desc.String)
		p.Category = strings.TrimSpace(p.Category)
		p.Price = strings.TrimSpace(price.String)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// PendingReviews returns reviews with text and without a vector.
func (s *Store) PendingReviews(ctx context.Context) ([]*types.ReviewProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, review_text, rating
		FROM Reviews
		WHERE review_embedding IS NULL
			AND review_text IS NOT NULL
			AND review_text != ''
		ORDER BY review_id
	`)
	if err != nil {
		return nil, fmt.Errorf("select pending reviews: %w", err)
	}
	defer rows.Close()

	var profiles []*types.ReviewProfile
	for rows.Next() {
		var (
			p      types.ReviewProfile
			rating sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Text, &rating); err != nil {
			return nil, err
		}
		p.Text = strings.TrimSpace(p.Text)
		p.Rating = int(rating.Int64)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// EmbeddingStats counts rows with and without a vector.
func (s *Store) EmbeddingStats(ctx context.Context, entity types.Entity) (*types.EmbeddingStats, error) {
	t := types.TableFor(entity)
	var total, embedded int
	q := fmt.Sprintf("SELECT COUNT(*), COUNT(%s) FROM %s", quoteIdent(t.VectorColumn), quoteIdent(t.Table))
	if err := s.db.QueryRowContext(ctx, q).Scan(&total, &embedded); err != nil {
		return nil, fmt.Errorf("count %s embeddings: %w", entity, err)
	}
	return &types.EmbeddingStats{
		Entity:   entity,
		Total:    total,
		Embedded: embedded,
		Pending:  total - embedded,
	}, nil
}

// BeginVectorBatch opens a transaction holding one batch of vector updates.
func (s *Store) BeginVectorBatch(ctx context.Context, entity types.Entity) (provider.VectorBatch, error) {
	t := types.TableFor(entity)
	// The transaction outlives cancellation so staged updates can still be committed.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, persistErr("begin", err)
	}
	q := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = ?",
		quoteIdent(t.Table), quoteIdent(t.VectorColumn), s.dialect.vectorParam(), quoteIdent(t.IDColumn))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return nil, persistErr("prepare update", err)
	}
	return &vectorBatch{tx: tx, stmt: stmt, entity: entity}, nil
}

type vectorBatch struct {
	tx     *sql.Tx
	stmt   *sql.Stmt
	entity types.Entity
	done   bool
}

func (b *vectorBatch) SetVector(ctx context.Context, id int64, literal string) error {
	res, err := b.stmt.ExecContext(ctx, literal, id)
	if err != nil {
		return persistErr(fmt.Sprintf("update %s %d", b.entity, id), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Warn("vector update matched no row", "entity", b.entity, "id", id)
	}
	return nil
}

func (b *vectorBatch) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	b.stmt.Close()
	if err := b.tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

func (b *vectorBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	b.stmt.Close()
	return b.tx.Rollback()
}
