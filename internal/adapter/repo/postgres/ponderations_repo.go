package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// PonderationRepo persists scored snapshots and their failed items.
type PonderationRepo struct{ Pool PgxPool }

// NewPonderationRepo constructs a PonderationRepo with the given pool.
func NewPonderationRepo(p PgxPool) *PonderationRepo { return &PonderationRepo{Pool: p} }

// Finalize applies the whole finalize write set in one transaction: the
// ponderation row, its failed items, the evaluation status flip and the
// student moving into review. Any failure rolls everything back.
func (r *PonderationRepo) Finalize(ctx domain.Context, w domain.FinalizeWrite) (string, error) {
	tracer := otel.Tracer("repo.ponderations")
	ctx, span := tracer.Start(ctx, "ponderations.Finalize")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("op=ponderation.finalize_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pondID := w.Ponderation.ID
	if pondID == "" {
		pondID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO ponderations (id, student_id, score_percent, status_general, created_at) VALUES ($1,$2,$3,$4,$5)`,
		pondID, w.Ponderation.StudentID, w.Ponderation.ScorePercent, w.Ponderation.StatusGeneral, now)
	if err != nil {
		return "", fmt.Errorf("op=ponderation.finalize_insert: %w", err)
	}
	for _, it := range w.Items {
		itemID := it.ID
		if itemID == "" {
			itemID = uuid.New().String()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ponderation_items (id, ponderation_id, section_id, item_id, question, observation) VALUES ($1,$2,$3,$4,$5,$6)`,
			itemID, pondID, it.SectionID, it.ItemID, it.Question, it.Observation)
		if err != nil {
			return "", fmt.Errorf("op=ponderation.finalize_item: %w", err)
		}
	}
	tag, err := tx.Exec(ctx,
		`UPDATE evaluations SET status=$2, updated_at=$3 WHERE id=$1`,
		w.EvaluationID, domain.EvaluationFinalized, now)
	if err != nil {
		return "", fmt.Errorf("op=ponderation.finalize_evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("op=ponderation.finalize_evaluation: %w", domain.ErrNotFound)
	}
	_, err = tx.Exec(ctx,
		`UPDATE students SET status=$2, updated_at=$3 WHERE id=$1`,
		w.StudentID, domain.StudentInReview, now)
	if err != nil {
		return "", fmt.Errorf("op=ponderation.finalize_student: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("op=ponderation.finalize_commit: %w", err)
	}
	return pondID, nil
}

// Get loads one ponderation by id.
func (r *PonderationRepo) Get(ctx domain.Context, id string) (domain.Ponderation, error) {
	tracer := otel.Tracer("repo.ponderations")
	ctx, span := tracer.Start(ctx, "ponderations.Get")
	defer span.End()
	q := `SELECT id, student_id, score_percent, status_general, created_at FROM ponderations WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var p domain.Ponderation
	if err := row.Scan(&p.ID, &p.StudentID, &p.ScorePercent, &p.StatusGeneral, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Ponderation{}, fmt.Errorf("op=ponderation.get: %w", domain.ErrNotFound)
		}
		return domain.Ponderation{}, fmt.Errorf("op=ponderation.get: %w", err)
	}
	return p, nil
}

// List returns the most recent ponderations joined with the student name.
func (r *PonderationRepo) List(ctx domain.Context, limit int) ([]domain.PonderationSummary, error) {
	tracer := otel.Tracer("repo.ponderations")
	ctx, span := tracer.Start(ctx, "ponderations.List")
	defer span.End()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT p.id, COALESCE(s.name,''), p.score_percent, p.status_general, p.created_at
	        FROM ponderations p
	        LEFT JOIN students s ON s.id = p.student_id
	       ORDER BY p.created_at DESC
	       LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=ponderation.list: %w", err)
	}
	defer rows.Close()
	var out []domain.PonderationSummary
	for rows.Next() {
		var ps domain.PonderationSummary
		if err := rows.Scan(&ps.ID, &ps.StudentName, &ps.ScorePercent, &ps.StatusGeneral, &ps.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=ponderation.list_scan: %w", err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=ponderation.list_rows: %w", err)
	}
	return out, nil
}

// ListItems returns the failed items of a ponderation in insertion order.
func (r *PonderationRepo) ListItems(ctx domain.Context, ponderationID string) ([]domain.PonderationItem, error) {
	tracer := otel.Tracer("repo.ponderations")
	ctx, span := tracer.Start(ctx, "ponderations.ListItems")
	defer span.End()
	q := `SELECT id, ponderation_id, section_id, item_id, question, COALESCE(observation,'')
	        FROM ponderation_items WHERE ponderation_id=$1 ORDER BY section_id, item_id`
	rows, err := r.Pool.Query(ctx, q, ponderationID)
	if err != nil {
		return nil, fmt.Errorf("op=ponderation.list_items: %w", err)
	}
	defer rows.Close()
	var out []domain.PonderationItem
	for rows.Next() {
		var it domain.PonderationItem
		if err := rows.Scan(&it.ID, &it.PonderationID, &it.SectionID, &it.ItemID, &it.Question, &it.Observation); err != nil {
			return nil, fmt.Errorf("op=ponderation.list_items_scan: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=ponderation.list_items_rows: %w", err)
	}
	return out, nil
}
