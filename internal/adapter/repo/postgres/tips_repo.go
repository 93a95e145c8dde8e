package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// TipRepo persists generated (and fallback) remediation tips.
type TipRepo struct{ Pool PgxPool }

// NewTipRepo constructs a TipRepo with the given pool.
func NewTipRepo(p PgxPool) *TipRepo { return &TipRepo{Pool: p} }

// Create inserts one tip row and returns its id.
func (r *TipRepo) Create(ctx domain.Context, t domain.AiTip) (string, error) {
	tracer := otel.Tracer("repo.tips")
	ctx, span := tracer.Start(ctx, "tips.Create")
	defer span.End()
	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := t.GeneratedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	q := `INSERT INTO ai_tips (id, ponderation_item_id, diagnosis, how_to_fix, practical_example, is_fallback, generated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, id, t.PonderationItemID, t.Diagnosis, t.HowToFix, t.PracticalExample, t.IsFallback, at)
	if err != nil {
		return "", fmt.Errorf("op=tip.create: %w", err)
	}
	return id, nil
}

// ExistingItemIDs reports which of the given ponderation item ids already hold
// a tip. The answer drives the resume guard: items present here are skipped.
func (r *TipRepo) ExistingItemIDs(ctx domain.Context, itemIDs []string) (map[string]bool, error) {
	tracer := otel.Tracer("repo.tips")
	ctx, span := tracer.Start(ctx, "tips.ExistingItemIDs")
	defer span.End()
	out := make(map[string]bool, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	q := `SELECT DISTINCT ponderation_item_id FROM ai_tips WHERE ponderation_item_id = ANY($1)`
	rows, err := r.Pool.Query(ctx, q, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("op=tip.existing: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=tip.existing_scan: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=tip.existing_rows: %w", err)
	}
	return out, nil
}

// ListByItemIDs returns the tip per ponderation item id, for detail views.
func (r *TipRepo) ListByItemIDs(ctx domain.Context, itemIDs []string) (map[string]domain.AiTip, error) {
	tracer := otel.Tracer("repo.tips")
	ctx, span := tracer.Start(ctx, "tips.ListByItemIDs")
	defer span.End()
	out := make(map[string]domain.AiTip, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	q := `SELECT id, ponderation_item_id, diagnosis, how_to_fix, practical_example, is_fallback, generated_at
	        FROM ai_tips WHERE ponderation_item_id = ANY($1)`
	rows, err := r.Pool.Query(ctx, q, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("op=tip.list: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t domain.AiTip
		if err := rows.Scan(&t.ID, &t.PonderationItemID, &t.Diagnosis, &t.HowToFix, &t.PracticalExample, &t.IsFallback, &t.GeneratedAt); err != nil {
			return nil, fmt.Errorf("op=tip.list_scan: %w", err)
		}
		out[t.PonderationItemID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=tip.list_rows: %w", err)
	}
	return out, nil
}
