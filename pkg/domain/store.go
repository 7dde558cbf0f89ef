package domain

import "context"

// Driver identifies a concrete document store backend implementation.
type Driver string

const (
	DriverMemory Driver = "memory" // in-process (tests, local development)
	DriverDynamo Driver = "dynamo" // Amazon DynamoDB
)

// ListOptions narrows and pages a ListLatest call.
type ListOptions struct {
	// Filter holds equality predicates matched against document attributes
	// (e.g. status=approved). All predicates must match.
	Filter map[string]string
	// Limit caps the page size. Backends apply a default when zero.
	Limit int
	// Token resumes listing from a previous page's NextToken. Tokens are
	// opaque and backend-specific; callers must never construct or
	// interpret them.
	Token string
}

// Page is one slice of a ListLatest traversal.
type Page struct {
	Documents []Document `json:"documents"`
	// NextToken is non-empty when more results may exist beyond this page.
	NextToken string `json:"next_token,omitempty"`
	// Total counts the documents in this page only. It is intentionally not
	// an exact overall match count: the durable backend cannot report one
	// without a full index scan, so both backends share the per-page semantic.
	Total int `json:"total"`
}

// Store is the contract every document store backend implements. All
// backends must satisfy identical externally observable semantics.
type Store interface {
	// Create persists a new document at version 1 with Latest=true.
	Create(ctx context.Context, draft DocumentDraft) (Document, error)
	// GetLatest returns the highest version of id, or NotFoundError.
	GetLatest(ctx context.Context, id string) (Document, error)
	// Update applies a partial payload on top of the current latest version
	// and appends the result as a new version, demoting the old latest.
	// Returns NotFoundError when id has no current version.
	Update(ctx context.Context, id string, patch DocumentPatch) (Document, error)
	// CreateVersion duplicates the current payload unchanged into a new
	// version: a checkpoint, distinct from Update.
	CreateVersion(ctx context.Context, id string) (Document, error)
	// ListLatest returns only Latest=true documents, newest LastModified
	// first, filtered by the options' equality predicates.
	ListLatest(ctx context.Context, opts ListOptions) (Page, error)
	// AuditTrail returns every version of id in ascending version order.
	// An unknown id yields an empty sequence, not an error.
	AuditTrail(ctx context.Context, id string) ([]Document, error)
	// Driver reports which backend implementation is in use.
	Driver() Driver
}
