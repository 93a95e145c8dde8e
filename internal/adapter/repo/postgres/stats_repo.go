package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// StatsRepo aggregates the dashboard counters with a handful of group-by
// queries. It reads only, so every query runs outside a transaction.
type StatsRepo struct{ Pool PgxPool }

// NewStatsRepo constructs a StatsRepo with the given pool.
func NewStatsRepo(p PgxPool) *StatsRepo { return &StatsRepo{Pool: p} }

// Dashboard computes the advisor dashboard projection.
func (r *StatsRepo) Dashboard(ctx domain.Context) (domain.DashboardStats, error) {
	tracer := otel.Tracer("repo.stats")
	ctx, span := tracer.Start(ctx, "stats.Dashboard")
	defer span.End()

	stats := domain.DashboardStats{
		StudentsByStatus:   map[domain.StudentStatus]int{},
		PonderationsByTier: map[domain.PonderationStatus]int{},
	}

	rows, err := r.Pool.Query(ctx, `SELECT status, COUNT(*) FROM students GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("op=stats.students: %w", err)
	}
	for rows.Next() {
		var st domain.StudentStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("op=stats.students_scan: %w", err)
		}
		stats.StudentsByStatus[st] = n
		stats.TotalStudents += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("op=stats.students_rows: %w", err)
	}

	rows, err = r.Pool.Query(ctx, `SELECT status_general, COUNT(*) FROM ponderations GROUP BY status_general`)
	if err != nil {
		return stats, fmt.Errorf("op=stats.ponderations: %w", err)
	}
	for rows.Next() {
		var st domain.PonderationStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("op=stats.ponderations_scan: %w", err)
		}
		stats.PonderationsByTier[st] = n
		stats.TotalPonderations += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("op=stats.ponderations_rows: %w", err)
	}

	err = r.Pool.QueryRow(ctx, `SELECT COALESCE(AVG(score_percent),0) FROM ponderations`).Scan(&stats.AverageScore)
	if err != nil {
		return stats, fmt.Errorf("op=stats.avg_score: %w", err)
	}

	err = r.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE NOT is_fallback), COUNT(*) FILTER (WHERE is_fallback) FROM ai_tips`).
		Scan(&stats.TipsGenerated, &stats.TipsFallback)
	if err != nil {
		return stats, fmt.Errorf("op=stats.tips: %w", err)
	}

	return stats, nil
}
