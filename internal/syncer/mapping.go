package syncer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spetr/aethersync/pkg/types"
)

// Kind is the document type a field is converted to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindDate
)

// Field maps one or more source columns to a document path.
type Field struct {
	Target  string   // dotted document path
	Sources []string // more than one source is joined with a space
	Kind    Kind

	// Optional keeps NULL and empty sources as null instead of a zero value.
	Optional bool
}

// Mapping is the fixed translation of one queue into its collection.
type Mapping struct {
	Entity     types.Entity
	Collection string
	KeyField   string // document identity field
	SourceKey  string // column holding the entity id
	Fields     []Field

	// Backfill fields are written by the full load only. Queue rows do not
	// carry these columns, so the drain never touches them.
	Backfill []Field

	// OnInsert returns the enrichment defaults written only on creation.
	OnInsert func() map[string]any
}

var mappings = map[types.Entity]Mapping{
	types.EntityCustomer: {
		Entity:    types.EntityCustomer,
		SourceKey: "customer_id",
		Fields: []Field{
			{Target: "full_name", Sources: []string{"first_name", "last_name"}},
			{Target: "email", Sources: []string{"email"}},
			{Target: "location.city", Sources: []string{"city"}},
			{Target: "location.state", Sources: []string{"state"}},
			{Target: "location.zip", Sources: []string{"zipcode"}},
		},
		Backfill: []Field{
			{Target: "registration_date", Sources: []string{"registration_date"}, Kind: KindDate},
		},
		OnInsert: func() map[string]any {
			return map[string]any{
				"recent_activity_log":  []any{},
				"customer_preferences": map[string]any{},
				"social_media_handles": map[string]any{},
			}
		},
	},
	types.EntityProduct: {
		Entity:    types.EntityProduct,
		SourceKey: "product_id",
		Fields: []Field{
			{Target: "name", Sources: []string{"product_name"}},
			{Target: "price", Sources: []string{"price"}, Kind: KindFloat},
		},
		Backfill: []Field{
			{Target: "category", Sources: []string{"category_name"}},
			{Target: "sql_current_rating", Sources: []string{"current_rating"}, Kind: KindFloat, Optional: true},
		},
		OnInsert: func() map[string]any {
			return map[string]any{"specifications": map[string]any{}}
		},
	},
	types.EntityReview: {
		Entity:    types.EntityReview,
		SourceKey: "review_id",
		Fields: []Field{
			{Target: "customer_id_sql", Sources: []string{"customer_id"}, Kind: KindInt},
			{Target: "product_id_sql", Sources: []string{"product_id"}, Kind: KindInt},
			{Target: "rating", Sources: []string{"rating"}, Kind: KindFloat},
			{Target: "review_text", Sources: []string{"review_text"}},
			{Target: "review_date", Sources: []string{"review_date"}, Kind: KindDate},
		},
		OnInsert: func() map[string]any {
			return map[string]any{"media_attachments": []any{}, "upvotes": 0}
		},
	},
}

// MappingFor returns the mapping of entity's queue.
func MappingFor(entity types.Entity) Mapping {
	m, ok := mappings[entity]
	if !ok {
		panic("syncer: no mapping for " + string(entity))
	}
	t := types.TableFor(entity)
	m.Collection = t.Collection
	m.KeyField = t.DocumentKey
	return m
}

// Document converts a queue snapshot into the document key and the $set
// fields. Columns outside the mapping are ignored.
func (m Mapping) Document(row map[string]any) (int64, map[string]any, error) {
	return m.document(row, m.Fields)
}

// BackfillDocument is Document plus the Backfill fields, for base table rows.
func (m Mapping) BackfillDocument(row map[string]any) (int64, map[string]any, error) {
	fields := make([]Field, 0, len(m.Fields)+len(m.Backfill))
	fields = append(fields, m.Fields...)
	fields = append(fields, m.Backfill...)
	return m.document(row, fields)
}

func (m Mapping) document(row map[string]any, fields []Field) (int64, map[string]any, error) {
	raw := row[m.SourceKey]
	if raw == nil {
		return 0, nil, &types.MappingError{Queue: m.Entity, Field: m.SourceKey, Err: fmt.Errorf("missing id")}
	}
	key, err := toInt(raw)
	if err != nil {
		return 0, nil, &types.MappingError{Queue: m.Entity, Field: m.SourceKey, Err: err}
	}

	set := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		v, err := f.convert(row)
		if err != nil {
			return 0, nil, &types.MappingError{Queue: m.Entity, Field: f.Target, Err: err}
		}
		set[f.Target] = v
	}
	return key, set, nil
}

func (f Field) convert(row map[string]any) (any, error) {
	if len(f.Sources) > 1 {
		parts := make([]string, 0, len(f.Sources))
		for _, src := range f.Sources {
			if s := toString(row[src]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), nil
	}

	v := row[f.Sources[0]]
	if f.Optional && toString(v) == "" {
		return nil, nil
	}
	switch f.Kind {
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindDate:
		return toDate(v)
	default:
		return toString(v), nil
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// toInt converts NULL to 0.
func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int64(n), nil
	case string, []byte:
		s := toString(n)
		if s == "" {
			return 0, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", s)
		}
		return i, nil
	}
	return 0, fmt.Errorf("unsupported integer value %T", v)
}

// toFloat converts NULL to 0 and decimal text to float64.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string, []byte:
		s := toString(n)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported numeric value %T", v)
}

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// toDate returns nil for NULL or empty dates.
func toDate(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return d.UTC(), nil
	case string, []byte:
		s := toString(d)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%q is not a date", s)
	}
	return nil, fmt.Errorf("unsupported date value %T", v)
}
