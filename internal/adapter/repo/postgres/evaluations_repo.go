package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// EvaluationRepo persists and loads evaluation drafts. The answers collection
// is stored as a JSONB document, mirroring how the evaluation form submits it.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Create inserts a draft evaluation and returns its id.
func (r *EvaluationRepo) Create(ctx domain.Context, e domain.Evaluation) (string, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Create")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	items := e.Items
	if items == nil {
		items = []domain.Answer{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("op=evaluation.create_marshal: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO evaluations (id, student_id, status, data, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = r.Pool.Exec(ctx, q, id, e.StudentID, domain.EvaluationDraft, data, now, now)
	if err != nil {
		return "", fmt.Errorf("op=evaluation.create: %w", err)
	}
	return id, nil
}

// UpdateItems replaces the answers of a draft evaluation.
func (r *EvaluationRepo) UpdateItems(ctx domain.Context, id string, items []domain.Answer) error {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.UpdateItems")
	defer span.End()
	if items == nil {
		items = []domain.Answer{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("op=evaluation.update_marshal: %w", err)
	}
	q := `UPDATE evaluations SET data=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=evaluation.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=evaluation.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads an evaluation by id.
func (r *EvaluationRepo) Get(ctx domain.Context, id string) (domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.Get")
	defer span.End()
	q := `SELECT id, student_id, status, COALESCE(data,'[]'::jsonb), created_at, updated_at FROM evaluations WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var e domain.Evaluation
	var data []byte
	if err := row.Scan(&e.ID, &e.StudentID, &e.Status, &data, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", domain.ErrNotFound)
		}
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", err)
	}
	if err := json.Unmarshal(data, &e.Items); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get_unmarshal: %w", err)
	}
	return e, nil
}

// ListByStudent returns the most recent evaluations for a student.
func (r *EvaluationRepo) ListByStudent(ctx domain.Context, studentID string, limit int) ([]domain.Evaluation, error) {
	tracer := otel.Tracer("repo.evaluations")
	ctx, span := tracer.Start(ctx, "evaluations.ListByStudent")
	defer span.End()
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := `SELECT id, student_id, status, COALESCE(data,'[]'::jsonb), created_at, updated_at FROM evaluations WHERE student_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=evaluation.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		var data []byte
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Status, &data, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=evaluation.list_scan: %w", err)
		}
		if err := json.Unmarshal(data, &e.Items); err != nil {
			return nil, fmt.Errorf("op=evaluation.list_unmarshal: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluation.list_rows: %w", err)
	}
	return out, nil
}
