package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spetr/aethersync/pkg/types"
)

// Nearest returns the k embedded rows of entity closest to the encoded query
// vector, by ascending cosine distance. For reviews, a non-empty ratings
// list restricts the candidates before ranking.
func (s *Store) Nearest(ctx context.Context, entity types.Entity, literal string, k int, ratings []int) ([]types.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	switch entity {
	case types.EntityProduct:
		return s.nearestProducts(ctx, literal, k)
	case types.EntityReview:
		return s.nearestReviews(ctx, literal, k, ratings)
	case types.EntityCustomer:
		return s.nearestCustomers(ctx, literal, k)
	}
	return nil, fmt.Errorf("search: unknown entity %q", entity)
}

func (s *Store) nearestProducts(ctx context.Context, literal string, k int) ([]types.Match, error) {
	q := fmt.Sprintf(`
		SELECT product_id, product_name, product_description, %s AS distance
		FROM Products
		WHERE product_embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?`, s.dialect.distance("product_embedding"))
	rows, err := s.db.QueryContext(ctx, q, literal, k)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var (
			m          = types.Match{Entity: types.EntityProduct}
			name, desc sql.NullString
		)
		if err := rows.Scan(&m.ID, &name, &desc, &m.Distance); err != nil {
			return nil, err
		}
		m.Title = name.String
		m.Detail = desc.String
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) nearestReviews(ctx context.Context, literal string, k int, ratings []int) ([]types.Match, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT review_id, review_text, rating, %s AS distance
		FROM Reviews
		WHERE review_embedding IS NOT NULL`, s.dialect.distance("review_embedding"))

	args := []any{literal}
	if len(ratings) > 0 {
		sb.WriteString(" AND rating IN (")
		for i, r := range ratings {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, r)
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ORDER BY distance ASC LIMIT ?")
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search reviews: %w", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var (
			m      = types.Match{Entity: types.EntityReview}
			text   sql.NullString
			rating sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &text, &rating, &m.Distance); err != nil {
			return nil, err
		}
		m.Title = fmt.Sprintf("Review #%d", m.ID)
		m.Detail = text.String
		m.Rating = int(rating.Int64)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) nearestCustomers(ctx context.Context, literal string, k int) ([]types.Match, error) {
	q := fmt.Sprintf(`
		SELECT customer_id, first_name, last_name, city, state, %s AS distance
		FROM Customers
		WHERE customer_embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?`, s.dialect.distance("customer_embedding"))
	rows, err := s.db.QueryContext(ctx, q, literal, k)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}

	var (
		matches []types.Match
		places  []string
	)
	for rows.Next() {
		var (
			m                        = types.Match{Entity: types.EntityCustomer}
			first, last, city, state sql.NullString
		)
		if err := rows.Scan(&m.ID, &first, &last, &city, &state, &m.Distance); err != nil {
			rows.Close()
			return nil, err
		}
		m.Title = strings.TrimSpace(first.String + " " + last.String)
		matches = append(matches, m)
		places = append(places, fmt.Sprintf("%s, %s", strings.TrimSpace(city.String), strings.TrimSpace(state.String)))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	// Categories are read after the ranking query is closed; sqlite runs on one connection.
	ids := make([]any, len(matches))
	marks := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		marks[i] = "?"
	}
	cats, err := s.customerCategories(ctx, "c.customer_id IN ("+strings.Join(marks, ", ")+")", ids...)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		buys := "no purchase history"
		if c := cats[matches[i].ID]; len(c) > 0 {
			buys = "buys " + strings.Join(c, ", ")
		}
		matches[i].Detail = places[i] + "; " + buys
	}
	return matches, nil
}

// CustomerEvidence returns the five most recently ordered product names and
// the average review rating of a customer.
func (s *Store) CustomerEvidence(ctx context.Context, customerID int64) (*types.CustomerEvidence, error) {
	ev := &types.CustomerEvidence{CustomerID: customerID}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_name
		FROM Orders o
		JOIN Order_Items oi ON oi.order_id = o.order_id
		JOIN Products p ON p.product_id = oi.product_id
		WHERE o.customer_id = ?
		ORDER BY o.order_date DESC, o.order_id DESC
		LIMIT 5
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("select recent products: %w", err)
	}
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		ev.RecentProducts = append(ev.RecentProducts, name.String)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(rating) FROM Reviews WHERE customer_id = ?", customerID).Scan(&avg); err != nil {
		return nil, fmt.Errorf("select average rating: %w", err)
	}
	ev.AverageRating = avg.Float64
	ev.HasRatings = avg.Valid
	return ev, nil
}
