package usecase

import (
	"fmt"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// EvaluationService manages evaluation drafts up to the finalize boundary.
type EvaluationService struct {
	Evaluations domain.EvaluationRepository
	Students    domain.StudentRepository
}

// NewEvaluationService wires an EvaluationService.
func NewEvaluationService(evals domain.EvaluationRepository, students domain.StudentRepository) *EvaluationService {
	return &EvaluationService{Evaluations: evals, Students: students}
}

// CreateDraft opens a new draft for an existing student.
func (s *EvaluationService) CreateDraft(ctx domain.Context, studentID string) (string, error) {
	if _, err := s.Students.Get(ctx, studentID); err != nil {
		return "", fmt.Errorf("evaluations: %w", err)
	}
	id, err := s.Evaluations.Create(ctx, domain.Evaluation{StudentID: studentID})
	if err != nil {
		return "", fmt.Errorf("evaluations: %w", err)
	}
	return id, nil
}

// SaveItems replaces the answers of a draft. Finalized evaluations are
// immutable.
func (s *EvaluationService) SaveItems(ctx domain.Context, id string, items []domain.Answer) error {
	eval, err := s.Evaluations.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("evaluations: %w", err)
	}
	if eval.Status == domain.EvaluationFinalized {
		return &domain.AlreadyFinalizedError{EvaluationID: id}
	}
	if err := s.Evaluations.UpdateItems(ctx, id, items); err != nil {
		return fmt.Errorf("evaluations: %w", err)
	}
	return nil
}

// Get loads one evaluation with its answers.
func (s *EvaluationService) Get(ctx domain.Context, id string) (domain.Evaluation, error) {
	eval, err := s.Evaluations.Get(ctx, id)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("evaluations: %w", err)
	}
	return eval, nil
}

// ListByStudent returns the student's most recent evaluations.
func (s *EvaluationService) ListByStudent(ctx domain.Context, studentID string, limit int) ([]domain.Evaluation, error) {
	out, err := s.Evaluations.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("evaluations: %w", err)
	}
	return out, nil
}
