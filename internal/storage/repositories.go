package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidStatus is returned when a write carries a status outside the
// known set.
var ErrInvalidStatus = errors.New("invalid job status")

// DB abstracts database operations for repositories.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DocumentRepository handles document persistence.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, owner_id, name, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Name, doc.StoragePath, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, owner_id, name, storage_path, parsed_text, raw_markdown, parsed_at, created_at
		FROM documents
		WHERE id = $1`

	var doc Document
	var parsedText, rawMarkdown sql.NullString
	var parsedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.OwnerID, &doc.Name, &doc.StoragePath,
		&parsedText, &rawMarkdown, &parsedAt, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	if parsedText.Valid {
		doc.ParsedText = &parsedText.String
	}
	if rawMarkdown.Valid {
		doc.RawMarkdown = &rawMarkdown.String
	}
	if parsedAt.Valid {
		doc.ParsedAt = &parsedAt.Time
	}

	return &doc, nil
}

// SetParsedText stores the parse stage's output on the document and stamps
// the parse time. Rerunning a parse overwrites the previous output.
func (r *DocumentRepository) SetParsedText(ctx context.Context, id uuid.UUID, parsedText, rawMarkdown string) error {
	query := `
		UPDATE documents
		SET parsed_text = $1, raw_markdown = $2, parsed_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, parsedText, rawMarkdown, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document parsed text: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ParseJobRepository handles parse job persistence.
type ParseJobRepository struct {
	db DB
}

// NewParseJobRepository creates a new parse job repository.
func NewParseJobRepository(db DB) *ParseJobRepository {
	return &ParseJobRepository{db: db}
}

// Create inserts a new parse job in pending state.
func (r *ParseJobRepository) Create(ctx context.Context, job *ParseJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, job.Status)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO parse_jobs (id, document_id, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.DocumentID, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert parse job: %w", err)
	}
	return nil
}

// GetByID retrieves a parse job by ID.
func (r *ParseJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*ParseJob, error) {
	query := `
		SELECT id, document_id, status, progress, error_message, created_at, updated_at
		FROM parse_jobs
		WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateProgress writes a new progress value and, when status is non-empty,
// a new status. Unknown statuses are rejected before touching the database.
func (r *ParseJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status JobStatus) error {
	return updateJobProgress(ctx, r.db, "parse_jobs", id, progress, status)
}

// MarkCompleted moves the job to completed at 100 percent.
func (r *ParseJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return updateJobProgress(ctx, r.db, "parse_jobs", id, 100, JobStatusCompleted)
}

// MarkFailed moves the job to failed with an operator-readable message.
func (r *ParseJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE parse_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, JobStatusFailed, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark parse job failed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConvertJobRepository handles convert job persistence.
type ConvertJobRepository struct {
	db DB
}

// NewConvertJobRepository creates a new convert job repository.
func NewConvertJobRepository(db DB) *ConvertJobRepository {
	return &ConvertJobRepository{db: db}
}

// Create inserts a new convert job in pending state.
func (r *ConvertJobRepository) Create(ctx context.Context, job *ConvertJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, job.Status)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO convert_jobs (id, document_id, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.DocumentID, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert convert job: %w", err)
	}
	return nil
}

// GetByID retrieves a convert job by ID.
func (r *ConvertJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*ConvertJob, error) {
	query := `
		SELECT id, document_id, status, progress, output_path, error_message, created_at, updated_at
		FROM convert_jobs
		WHERE id = $1`

	var job ConvertJob
	var outputPath, errMsg sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.DocumentID, &job.Status, &job.Progress,
		&outputPath, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query convert job: %w", err)
	}

	if outputPath.Valid {
		job.OutputPath = &outputPath.String
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}

	return &job, nil
}

// UpdateProgress writes a new progress value and, when status is non-empty,
// a new status. Unknown statuses are rejected before touching the database.
func (r *ConvertJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status JobStatus) error {
	return updateJobProgress(ctx, r.db, "convert_jobs", id, progress, status)
}

// MarkCompleted moves the job to completed at 100 percent and records the
// uploaded artifact path.
func (r *ConvertJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, outputPath string) error {
	query := `
		UPDATE convert_jobs
		SET status = $1, progress = 100, output_path = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, JobStatusCompleted, outputPath, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark convert job completed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed moves the job to failed with an operator-readable message.
func (r *ConvertJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE convert_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, JobStatusFailed, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark convert job failed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// PageRepository handles page persistence.
type PageRepository struct {
	db DB
}

// NewPageRepository creates a new page repository.
func NewPageRepository(db DB) *PageRepository {
	return &PageRepository{db: db}
}

// Create inserts a page.
func (r *PageRepository) Create(ctx context.Context, page *Page) error {
	if page.ID == uuid.Nil {
		page.ID = uuid.New()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pages (id, document_id, page_number, width, height, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		page.ID, page.DocumentID, page.PageNumber, page.Width, page.Height,
		page.Text, page.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// ListByDocument returns a document's pages in page order.
func (r *PageRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Page, error) {
	query := `
		SELECT id, document_id, page_number, width, height, text, created_at
		FROM pages
		WHERE document_id = $1
		ORDER BY page_number`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.Width, &p.Height,
			&p.Text, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// DeleteByDocument removes all pages of a document. Reparses wipe prior
// output before writing the new one.
func (r *PageRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pages WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}

// SentenceRepository handles sentence persistence.
type SentenceRepository struct {
	db DB
}

// NewSentenceRepository creates a new sentence repository.
func NewSentenceRepository(db DB) *SentenceRepository {
	return &SentenceRepository{db: db}
}

// bulkInsertChunk caps rows per INSERT so the statement stays well under
// SQLite's 999 host-parameter floor (7 placeholders per row).
const bulkInsertChunk = 100

// BulkInsert writes sentences in chunked multi-row statements. Regions are
// serialized to JSON.
func (r *SentenceRepository) BulkInsert(ctx context.Context, sentences []*Sentence) error {
	for len(sentences) > 0 {
		n := len(sentences)
		if n > bulkInsertChunk {
			n = bulkInsertChunk
		}
		if err := r.insertBatch(ctx, sentences[:n]); err != nil {
			return err
		}
		sentences = sentences[n:]
	}
	return nil
}

func (r *SentenceRepository) insertBatch(ctx context.Context, sentences []*Sentence) error {
	now := time.Now().UTC()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO sentences (id, page_id, document_id, text, sequence_number, regions, created_at) VALUES `)
	args := make([]interface{}, 0, len(sentences)*7)

	for i, s := range sentences {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}

		regions, err := json.Marshal(s.Regions)
		if err != nil {
			return fmt.Errorf("marshal sentence regions: %w", err)
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, s.ID, s.PageID, s.DocumentID, s.Text, s.SequenceNumber,
			string(regions), s.CreatedAt)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert sentences: %w", err)
	}
	return nil
}

// ListByDocument returns a document's sentences in narration order.
func (r *SentenceRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Sentence, error) {
	query := `
		SELECT id, page_id, document_id, text, sequence_number, regions, created_at
		FROM sentences
		WHERE document_id = $1
		ORDER BY sequence_number`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	var out []*Sentence
	for rows.Next() {
		var s Sentence
		var regions string
		if err := rows.Scan(&s.ID, &s.PageID, &s.DocumentID, &s.Text, &s.SequenceNumber,
			&regions, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		if err := json.Unmarshal([]byte(regions), &s.Regions); err != nil {
			return nil, fmt.Errorf("unmarshal sentence regions: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// DeleteByDocument removes all sentences of a document.
func (r *SentenceRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sentences WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete sentences: %w", err)
	}
	return nil
}

// scanJob scans a parse job row.
func scanJob(row *sql.Row) (*ParseJob, error) {
	var job ParseJob
	var errMsg sql.NullString

	err := row.Scan(&job.ID, &job.DocumentID, &job.Status, &job.Progress,
		&errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query parse job: %w", err)
	}

	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	return &job, nil
}

// updateJobProgress is the shared progress writer for both job tables. An
// empty status leaves the current status in place.
func updateJobProgress(ctx context.Context, db DB, table string, id uuid.UUID, progress int, status JobStatus) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress out of range: %d", progress)
	}

	var query string
	var args []interface{}
	if status != "" {
		if !status.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		query = fmt.Sprintf(`UPDATE %s SET progress = $1, status = $2, updated_at = $3 WHERE id = $4`, table)
		args = []interface{}{progress, status, time.Now().UTC(), id}
	} else {
		query = fmt.Sprintf(`UPDATE %s SET progress = $1, updated_at = $2 WHERE id = $3`, table)
		args = []interface{}{progress, time.Now().UTC(), id}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s progress: %w", table, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
