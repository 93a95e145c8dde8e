package usecase

import (
	"fmt"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// StudentService fronts the student repository for the HTTP layer.
type StudentService struct {
	Students domain.StudentRepository
}

// NewStudentService wires a StudentService.
func NewStudentService(students domain.StudentRepository) *StudentService {
	return &StudentService{Students: students}
}

// Create registers a new advisee.
func (s *StudentService) Create(ctx domain.Context, st domain.Student) (string, error) {
	id, err := s.Students.Create(ctx, st)
	if err != nil {
		return "", fmt.Errorf("students: %w", err)
	}
	return id, nil
}

// Update overwrites the student's mutable fields.
func (s *StudentService) Update(ctx domain.Context, st domain.Student) error {
	if err := s.Students.Update(ctx, st); err != nil {
		return fmt.Errorf("students: %w", err)
	}
	return nil
}

// Delete removes a student; dependent rows cascade in the database.
func (s *StudentService) Delete(ctx domain.Context, id string) error {
	if err := s.Students.Delete(ctx, id); err != nil {
		return fmt.Errorf("students: %w", err)
	}
	return nil
}

// Get loads one student.
func (s *StudentService) Get(ctx domain.Context, id string) (domain.Student, error) {
	st, err := s.Students.Get(ctx, id)
	if err != nil {
		return domain.Student{}, fmt.Errorf("students: %w", err)
	}
	return st, nil
}

// List returns a page of students with the total count for the filter.
func (s *StudentService) List(ctx domain.Context, q domain.ListStudentsQuery) ([]domain.Student, int, error) {
	out, total, err := s.Students.List(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("students: %w", err)
	}
	return out, total, nil
}
