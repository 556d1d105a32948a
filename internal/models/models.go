// package models defines the data model for the image cache index
package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models in the image
// resolution service. Implementations include Blob.
type Model interface {
	ID() string            // ID returns the unique identifier for this model
	CreatedAt() time.Time  // CreatedAt returns when this model was created
	AccessedAt() time.Time // AccessedAt returns when this model was last read
	Validate() error       // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Blob is one cached image payload's index entry. The bytes themselves live
// on disk under the filename; the row carries everything needed for lookup,
// revalidation, and pruning.
type Blob struct {
	id          string
	sequence    int
	url         string
	filename    string
	contentType string
	size        int64
	hits        int64
	etag        string
	createdAt   time.Time
	accessedAt  time.Time
}

// NewBlob creates a blob entry for a source URL and its on-disk filename.
func NewBlob(sequence int, sourceURL, filename string) *Blob {
	now := time.Now()
	return &Blob{
		sequence:   sequence,
		url:        sourceURL,
		filename:   filename,
		createdAt:  now,
		accessedAt: now,
	}
}

func (b *Blob) ID() string            { return b.id }
func (b *Blob) Sequence() int         { return b.sequence }
func (b *Blob) URL() string           { return b.url }
func (b *Blob) Filename() string      { return b.filename }
func (b *Blob) ContentType() string   { return b.contentType }
func (b *Blob) Size() int64           { return b.size }
func (b *Blob) Hits() int64           { return b.hits }
func (b *Blob) ETag() string          { return b.etag }
func (b *Blob) CreatedAt() time.Time  { return b.createdAt }
func (b *Blob) AccessedAt() time.Time { return b.accessedAt }

func (b *Blob) SetID(id string)            { b.id = id }
func (b *Blob) SetSequence(sequence int)   { b.sequence = sequence }
func (b *Blob) SetContentType(ct string)   { b.contentType = ct }
func (b *Blob) SetSize(size int64)         { b.size = size }
func (b *Blob) SetHits(hits int64)         { b.hits = hits }
func (b *Blob) SetETag(etag string)        { b.etag = etag }
func (b *Blob) SetCreatedAt(at time.Time)  { b.createdAt = at }
func (b *Blob) SetAccessedAt(at time.Time) { b.accessedAt = at }

// Validate checks the blob's invariants before persistence.
func (b *Blob) Validate() error {
	if strings.TrimSpace(b.url) == "" {
		return fmt.Errorf("blob url is required")
	}
	if _, err := url.Parse(b.url); err != nil {
		return fmt.Errorf("blob url is invalid: %w", err)
	}
	if strings.TrimSpace(b.filename) == "" {
		return fmt.Errorf("blob filename is required")
	}
	if strings.Contains(b.filename, "/") || strings.Contains(b.filename, "\\") {
		return fmt.Errorf("blob filename must not contain path separators: %s", b.filename)
	}
	if b.size < 0 {
		return fmt.Errorf("blob size must not be negative: %d", b.size)
	}
	return nil
}

// CacheStats summarizes the cache index for status output and the API.
type CacheStats struct {
	Blobs     int       `json:"blobs"`
	TotalSize int64     `json:"total_size"`
	TotalHits int64     `json:"total_hits"`
	Oldest    time.Time `json:"oldest,omitzero"`
	Newest    time.Time `json:"newest,omitzero"`
}
