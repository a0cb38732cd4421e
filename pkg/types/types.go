// Package types contains shared data types used across the aethersync project.
package types

import (
	"context"
	"fmt"
	"strings"
)

// Entity identifies one of the embeddable / synchronised entity kinds.
type Entity string

const (
	EntityCustomer Entity = "customer"
	EntityProduct  Entity = "product"
	EntityReview   Entity = "review"
)

// AllEntities returns every entity kind in pipeline order.
func AllEntities() []Entity {
	return []Entity{EntityCustomer, EntityProduct, EntityReview}
}

// ParseEntity converts a user supplied name ("customers", "Product", ...) to an Entity.
func ParseEntity(s string) (Entity, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "customer":
		return EntityCustomer, nil
	case "product":
		return EntityProduct, nil
	case "review":
		return EntityReview, nil
	}
	return "", fmt.Errorf("unknown entity %q (valid: customer, product, review)", s)
}

// EmbeddingRole tells the provider how a text will be used.
type EmbeddingRole string

const (
	RoleDocument EmbeddingRole = "document" // stored vectors
	RoleQuery    EmbeddingRole = "query"    // search input
)

// EmbeddingStatus is the tag of an EmbeddingState.
type EmbeddingStatus int

const (
	EmbeddingPending EmbeddingStatus = iota
	EmbeddingDone
)

func (s EmbeddingStatus) String() string {
	if s == EmbeddingDone {
		return "embedded"
	}
	return "pending"
}

// EmbeddingState is the embedding state of one entity row.
// In the relational store a NULL vector column encodes Pending.
type EmbeddingState struct {
	Status EmbeddingStatus
	Vector []float32 // set only when Status == EmbeddingDone
}

// Pending returns the state of a row that still needs a vector.
func Pending() EmbeddingState {
	return EmbeddingState{Status: EmbeddingPending}
}

// Embedded returns the state of a row holding vec.
func Embedded(vec []float32) EmbeddingState {
	return EmbeddingState{Status: EmbeddingDone, Vector: vec}
}

// IsPending reports whether the row still needs embedding.
func (s EmbeddingState) IsPending() bool {
	return s.Status == EmbeddingPending
}

// CustomerProfile is the joined relational data needed to describe a customer.
type CustomerProfile struct {
	ID         int64
	FirstName  string
	LastName   string
	City       string
	State      string
	Categories []string // distinct purchased category names, sorted
}

// ProductProfile is the joined relational data needed to describe a product.
type ProductProfile struct {
	ID          int64
	Name        string
	Description string
	Category    string
	Price       string // kept as the store's decimal text
}

// ReviewProfile is the relational data needed to describe a review.
type ReviewProfile struct {
	ID     int64
	Text   string
	Rating int
}

// Candidate is one pending entity with its engineered profile text.
type Candidate struct {
	Entity  Entity
	ID      int64
	Profile string
	State   EmbeddingState
}

// EmbeddingStats summarises the embedding progress of one entity table.
type EmbeddingStats struct {
	Entity   Entity
	Total    int
	Embedded int
	Pending  int
}

// JobStatus is the sync_status of a queue row.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no worker will touch a job in this status again.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SyncJob is one queued instruction to mirror a relational mutation.
type SyncJob struct {
	Queue    Entity
	QueueID  int64
	EntityID int64
	Status   JobStatus
	Snapshot map[string]any // raw column values from the queue row
}

// QueueStats counts jobs per status for one queue.
type QueueStats struct {
	Queue  Entity
	Counts map[JobStatus]int
}

// Match is one hybrid retrieval result.
type Match struct {
	Entity   Entity
	ID       int64
	Title    string
	Detail   string
	Rating   int // reviews only
	Distance float64
}

// Similarity returns the display similarity percentage.
func (m Match) Similarity() float64 {
	return (1 - m.Distance) * 100
}

// CustomerEvidence backs a customer lookalike match with purchase facts.
type CustomerEvidence struct {
	CustomerID     int64
	RecentProducts []string
	AverageRating  float64
	HasRatings     bool
}

// ConfirmFunc asks an operator to approve a destructive or paid step.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// AlwaysConfirm approves everything; used by --yes and non-interactive runs.
func AlwaysConfirm(ctx context.Context, message string) (bool, error) {
	return true, nil
}
