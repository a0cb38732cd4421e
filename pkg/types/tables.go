package types

// EntityTable describes where an entity lives in both stores.
type EntityTable struct {
	Entity       Entity
	Table        string // relational table
	IDColumn     string
	VectorColumn string
	VectorIndex  string // empty when the entity has no vector index

	// ResetOnAdopt clears a pre-existing vector column the first time the
	// schema guard takes ownership of it, so the index can be built on a
	// column whose every value was written by this pipeline.
	ResetOnAdopt bool

	QueueTable  string // <entity>_sync_queue
	Collection  string // document collection
	DocumentKey string // <entity>_id_sql
}

var entityTables = map[Entity]EntityTable{
	EntityCustomer: {
		Entity:       EntityCustomer,
		Table:        "Customers",
		IDColumn:     "customer_id",
		VectorColumn: "customer_embedding",
		VectorIndex:  "idx_customer_embedding",
		ResetOnAdopt: true,
		QueueTable:   "customer_sync_queue",
		Collection:   "customer_profiles",
		DocumentKey:  "customer_id_sql",
	},
	EntityProduct: {
		Entity:       EntityProduct,
		Table:        "Products",
		IDColumn:     "product_id",
		VectorColumn: "product_embedding",
		QueueTable:   "product_sync_queue",
		Collection:   "product_catalog",
		DocumentKey:  "product_id_sql",
	},
	EntityReview: {
		Entity:       EntityReview,
		Table:        "Reviews",
		IDColumn:     "review_id",
		VectorColumn: "review_embedding",
		VectorIndex:  "idx_review_embedding",
		ResetOnAdopt: true,
		QueueTable:   "review_sync_queue",
		Collection:   "reviews",
		DocumentKey:  "review_id_sql",
	},
}

// TableFor returns the table layout of e. It panics on an unknown entity,
// which can only come from a programming error since ParseEntity validates input.
func TableFor(e Entity) EntityTable {
	t, ok := entityTables[e]
	if !ok {
		panic("types: unknown entity " + string(e))
	}
	return t
}

// ColumnKind is a portable column type rendered by each SQL dialect.
type ColumnKind int

const (
	ColumnVector ColumnKind = iota
	ColumnText
	ColumnTimestamp
	ColumnInteger
)

// ColumnSpec is a column the schema guard can add.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
	Dims int // vectors only
}
