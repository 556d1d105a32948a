package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/imgmux/internal/models"
	"github.com/desertthunder/imgmux/internal/shared"
)

// BlobRepository implements [models.Repository] for cached image [models.Blob] persistence.
type BlobRepository struct {
	db *sql.DB
}

// NewBlobRepository creates a new [BlobRepository] with the given database connection
func NewBlobRepository(db *sql.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Create inserts a new blob into the index with generated ID and sequence
func (r *BlobRepository) Create(blob *models.Blob) error {
	sequence, err := NextSequence(r.db, "blobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	blob.SetID(id)
	blob.SetSequence(sequence)

	if err := blob.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO blobs (id, sequence, url, filename, content_type, size, hits, etag, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, blob.URL(), blob.Filename(), blob.ContentType(),
		blob.Size(), blob.Hits(), blob.ETag(), blob.CreatedAt(), blob.AccessedAt())
	if err != nil {
		return fmt.Errorf("failed to insert blob: %w", err)
	}

	return nil
}

// Get retrieves a blob by ID
func (r *BlobRepository) Get(id string) (*models.Blob, error) {
	query := `
		SELECT id, sequence, url, filename, content_type, size, hits, etag, created_at, accessed_at
		FROM blobs
		WHERE id = ?
	`
	return r.queryOne(query, id)
}

// GetByURL retrieves a blob by its source URL, the cache's primary lookup key
func (r *BlobRepository) GetByURL(sourceURL string) (*models.Blob, error) {
	query := `
		SELECT id, sequence, url, filename, content_type, size, hits, etag, created_at, accessed_at
		FROM blobs
		WHERE url = ?
	`
	return r.queryOne(query, sourceURL)
}

func (r *BlobRepository) queryOne(query string, arg any) (*models.Blob, error) {
	var (
		blobID      string
		sequence    int
		sourceURL   string
		filename    string
		contentType string
		size        int64
		hits        int64
		etag        string
		createdAt   time.Time
		accessedAt  time.Time
	)

	err := r.db.QueryRow(query, arg).Scan(&blobID, &sequence, &sourceURL, &filename,
		&contentType, &size, &hits, &etag, &createdAt, &accessedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %v", shared.ErrBlobNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query blob: %w", err)
	}

	blob := models.NewBlob(sequence, sourceURL, filename)
	blob.SetID(blobID)
	blob.SetContentType(contentType)
	blob.SetSize(size)
	blob.SetHits(hits)
	blob.SetETag(etag)
	blob.SetCreatedAt(createdAt)
	blob.SetAccessedAt(accessedAt)

	return blob, nil
}

// Update modifies an existing blob in the index
func (r *BlobRepository) Update(blob *models.Blob) error {
	if err := blob.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE blobs
		SET content_type = ?, size = ?, hits = ?, etag = ?, accessed_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, blob.ContentType(), blob.Size(), blob.Hits(),
		blob.ETag(), blob.AccessedAt(), blob.ID())
	if err != nil {
		return fmt.Errorf("failed to update blob: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrBlobNotFound, blob.ID())
	}

	return nil
}

// Delete removes a blob from the index by its ID. Eviction is a hard
// delete; the caller owns removing the file the row pointed at.
func (r *BlobRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM blobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrBlobNotFound, id)
	}

	return nil
}

// List retrieves all blobs matching the given criteria
func (r *BlobRepository) List(criteria map[string]any) ([]*models.Blob, error) {
	query := `
		SELECT id, sequence, url, filename, content_type, size, hits, etag, created_at, accessed_at
		FROM blobs
		WHERE 1 = 1
	`

	args := []any{}

	if sourceURL, ok := criteria["url"].(string); ok && sourceURL != "" {
		query += " AND url = ?"
		args = append(args, sourceURL)
	}
	if contentType, ok := criteria["content_type"].(string); ok && contentType != "" {
		query += " AND content_type = ?"
		args = append(args, contentType)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blobs: %w", err)
	}
	defer rows.Close()

	return scanBlobs(rows)
}

// ColdestFirst returns up to limit blobs ordered by least recent access,
// the order pruning consumes them in. A non-positive limit returns all rows.
func (r *BlobRepository) ColdestFirst(limit int) ([]*models.Blob, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, sequence, url, filename, content_type, size, hits, etag, created_at, accessed_at
		FROM blobs
		ORDER BY accessed_at ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query blobs: %w", err)
	}
	defer rows.Close()

	return scanBlobs(rows)
}

func scanBlobs(rows *sql.Rows) ([]*models.Blob, error) {
	var blobs []*models.Blob
	for rows.Next() {
		var (
			blobID      string
			sequence    int
			sourceURL   string
			filename    string
			contentType string
			size        int64
			hits        int64
			etag        string
			createdAt   time.Time
			accessedAt  time.Time
		)

		err := rows.Scan(&blobID, &sequence, &sourceURL, &filename, &contentType,
			&size, &hits, &etag, &createdAt, &accessedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}

		blob := models.NewBlob(sequence, sourceURL, filename)
		blob.SetID(blobID)
		blob.SetContentType(contentType)
		blob.SetSize(size)
		blob.SetHits(hits)
		blob.SetETag(etag)
		blob.SetCreatedAt(createdAt)
		blob.SetAccessedAt(accessedAt)

		blobs = append(blobs, blob)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return blobs, nil
}

// Touch records a cache hit: bump the hit counter and refresh accessed_at
// so the entry moves to the warm end of the prune order.
func (r *BlobRepository) Touch(id string) error {
	result, err := r.db.Exec("UPDATE blobs SET hits = hits + 1, accessed_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch blob: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrBlobNotFound, id)
	}

	return nil
}

// TotalSize returns the summed payload size of every indexed blob.
func (r *BlobRepository) TotalSize() (int64, error) {
	var total int64
	err := r.db.QueryRow("SELECT COALESCE(SUM(size), 0) FROM blobs").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum blob sizes: %w", err)
	}
	return total, nil
}

// Stats aggregates the index for status output.
func (r *BlobRepository) Stats() (*models.CacheStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(hits), 0), MIN(created_at), MAX(created_at)
		FROM blobs
	`

	var (
		stats  models.CacheStats
		oldest sql.NullTime
		newest sql.NullTime
	)

	err := r.db.QueryRow(query).Scan(&stats.Blobs, &stats.TotalSize, &stats.TotalHits, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate blobs: %w", err)
	}

	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	if newest.Valid {
		stats.Newest = newest.Time
	}

	return &stats, nil
}

// Clear removes every row from the index and reports how many went away.
func (r *BlobRepository) Clear() (int64, error) {
	result, err := r.db.Exec("DELETE FROM blobs")
	if err != nil {
		return 0, fmt.Errorf("failed to clear blobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
