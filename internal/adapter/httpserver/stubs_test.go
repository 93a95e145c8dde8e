package httpserver_test

import (
	"fmt"

	"github.com/opcdev/opc-evaluator/internal/checklist"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

type studentRepoStub struct {
	student domain.Student
	getErr  error
}

func (s *studentRepoStub) Create(_ domain.Context, _ domain.Student) (string, error) {
	return "s1", nil
}
func (s *studentRepoStub) Update(_ domain.Context, _ domain.Student) error { return nil }
func (s *studentRepoStub) Delete(_ domain.Context, _ string) error         { return nil }
func (s *studentRepoStub) Get(_ domain.Context, _ string) (domain.Student, error) {
	return s.student, s.getErr
}
func (s *studentRepoStub) List(_ domain.Context, _ domain.ListStudentsQuery) ([]domain.Student, int, error) {
	return []domain.Student{s.student}, 1, nil
}

type evalRepoStub struct {
	eval   domain.Evaluation
	getErr error
}

func (s *evalRepoStub) Create(_ domain.Context, _ domain.Evaluation) (string, error) {
	return "e1", nil
}
func (s *evalRepoStub) UpdateItems(_ domain.Context, _ string, _ []domain.Answer) error { return nil }
func (s *evalRepoStub) Get(_ domain.Context, _ string) (domain.Evaluation, error) {
	return s.eval, s.getErr
}
func (s *evalRepoStub) ListByStudent(_ domain.Context, _ string, _ int) ([]domain.Evaluation, error) {
	return nil, nil
}

type pondRepoStub struct {
	pond   domain.Ponderation
	items  []domain.PonderationItem
	getErr error
}

func (s *pondRepoStub) Finalize(_ domain.Context, _ domain.FinalizeWrite) (string, error) {
	return "pond-1", nil
}
func (s *pondRepoStub) Get(_ domain.Context, _ string) (domain.Ponderation, error) {
	return s.pond, s.getErr
}
func (s *pondRepoStub) List(_ domain.Context, _ int) ([]domain.PonderationSummary, error) {
	return []domain.PonderationSummary{}, nil
}
func (s *pondRepoStub) ListItems(_ domain.Context, _ string) ([]domain.PonderationItem, error) {
	return s.items, nil
}

type tipRepoStub struct{}

func (s *tipRepoStub) Create(_ domain.Context, _ domain.AiTip) (string, error) { return "t1", nil }
func (s *tipRepoStub) ExistingItemIDs(_ domain.Context, _ []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (s *tipRepoStub) ListByItemIDs(_ domain.Context, _ []string) (map[string]domain.AiTip, error) {
	return map[string]domain.AiTip{}, nil
}

type queueStub struct {
	enqueued []string
	err      error
}

func (s *queueStub) EnqueueTips(_ domain.Context, p domain.TipsTaskPayload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.enqueued = append(s.enqueued, p.PonderationID)
	return p.PonderationID, nil
}

type statsRepoStub struct{ stats domain.DashboardStats }

func (s *statsRepoStub) Dashboard(_ domain.Context) (domain.DashboardStats, error) {
	return s.stats, nil
}

// completeAnswers answers the whole catalog yes except the first noCount
// items, which get observations.
func completeAnswers(noCount int) []domain.Answer {
	var out []domain.Answer
	n := 0
	for _, sec := range checklist.Sections {
		for _, item := range sec.Items {
			v := n >= noCount
			ans := v
			obs := ""
			if !v {
				obs = fmt.Sprintf("obs %d", n)
			}
			n++
			out = append(out, domain.Answer{SectionID: sec.ID, ItemID: item.ID, Answer: &ans, Observation: obs})
		}
	}
	return out
}
