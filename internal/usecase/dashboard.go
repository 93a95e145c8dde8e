package usecase

import (
	"fmt"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// DashboardService serves the advisor dashboard aggregates.
type DashboardService struct {
	Stats domain.StatsRepository
}

// NewDashboardService wires a DashboardService.
func NewDashboardService(stats domain.StatsRepository) *DashboardService {
	return &DashboardService{Stats: stats}
}

// Dashboard computes the dashboard projection.
func (s *DashboardService) Dashboard(ctx domain.Context) (domain.DashboardStats, error) {
	out, err := s.Stats.Dashboard(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard: %w", err)
	}
	return out, nil
}
