package usecase

import (
	"fmt"
	"log/slog"

	"github.com/opcdev/opc-evaluator/internal/checklist"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

// PonderationService serves the read side of finalized evaluations and the
// on-demand tip regeneration trigger.
type PonderationService struct {
	Ponderations domain.PonderationRepository
	Students     domain.StudentRepository
	Tips         domain.TipRepository
	Queue        domain.TipQueue
}

// NewPonderationService wires a PonderationService.
func NewPonderationService(ponds domain.PonderationRepository, students domain.StudentRepository, tips domain.TipRepository, q domain.TipQueue) *PonderationService {
	return &PonderationService{Ponderations: ponds, Students: students, Tips: tips, Queue: q}
}

// ItemResult is one catalog item in a detail view: failed items carry the
// snapshot observation and, when available, the generated tip.
type ItemResult struct {
	ItemID      string        `json:"itemId"`
	Question    string        `json:"question"`
	Passed      bool          `json:"passed"`
	Observation string        `json:"observation,omitempty"`
	Tip         *domain.AiTip `json:"tip,omitempty"`
}

// SectionResult groups item results under a catalog section.
type SectionResult struct {
	SectionID string       `json:"sectionId"`
	Title     string       `json:"title"`
	Items     []ItemResult `json:"items"`
}

// Detail is the full reconstruction of one ponderation: every catalog item,
// passed or failed, in catalog order.
type Detail struct {
	Ponderation domain.Ponderation `json:"ponderation"`
	StudentName string             `json:"studentName"`
	Sections    []SectionResult    `json:"sections"`
}

// List returns recent ponderations joined with student names.
func (s *PonderationService) List(ctx domain.Context, limit int) ([]domain.PonderationSummary, error) {
	out, err := s.Ponderations.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ponderations: %w", err)
	}
	return out, nil
}

// Detail reconstructs the full checklist for one ponderation. Items absent
// from the snapshot passed; snapshot items failed and carry their tip when
// one exists. Snapshot rows that no longer match the catalog are appended to
// their section so nothing recorded is ever hidden.
func (s *PonderationService) Detail(ctx domain.Context, id string) (Detail, error) {
	pond, err := s.Ponderations.Get(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("ponderations: %w", err)
	}
	items, err := s.Ponderations.ListItems(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("ponderations: %w", err)
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	tips, err := s.Tips.ListByItemIDs(ctx, ids)
	if err != nil {
		return Detail{}, fmt.Errorf("ponderations: %w", err)
	}

	failed := make(map[string]domain.PonderationItem, len(items))
	for _, it := range items {
		failed[it.SectionID+":"+it.ItemID] = it
	}

	var sections []SectionResult
	for _, sec := range checklist.Sections {
		sr := SectionResult{SectionID: sec.ID, Title: sec.Title}
		for _, item := range sec.Items {
			key := sec.ID + ":" + item.ID
			snap, isFailed := failed[key]
			if !isFailed {
				sr.Items = append(sr.Items, ItemResult{
					ItemID:   item.ID,
					Question: item.Question,
					Passed:   true,
				})
				continue
			}
			delete(failed, key)
			res := ItemResult{
				ItemID:      item.ID,
				Question:    snap.Question,
				Observation: snap.Observation,
			}
			if tip, ok := tips[snap.ID]; ok {
				t := tip
				res.Tip = &t
			}
			sr.Items = append(sr.Items, res)
		}
		sections = append(sections, sr)
	}

	// Orphans: snapshot rows whose ids fell out of the catalog.
	for _, snap := range failed {
		res := ItemResult{
			ItemID:      snap.ItemID,
			Question:    snap.Question,
			Observation: snap.Observation,
		}
		if tip, ok := tips[snap.ID]; ok {
			t := tip
			res.Tip = &t
		}
		placed := false
		for i := range sections {
			if sections[i].SectionID == snap.SectionID {
				sections[i].Items = append(sections[i].Items, res)
				placed = true
				break
			}
		}
		if !placed {
			sections = append(sections, SectionResult{
				SectionID: snap.SectionID,
				Title:     checklist.SectionTitle(snap.SectionID),
				Items:     []ItemResult{res},
			})
		}
	}

	d := Detail{Ponderation: pond, Sections: sections}
	if student, err := s.Students.Get(ctx, pond.StudentID); err == nil {
		d.StudentName = student.Name
	} else {
		slog.Warn("student lookup failed for detail view",
			slog.String("student_id", pond.StudentID),
			slog.Any("error", err))
	}
	return d, nil
}

// Regenerate re-enqueues tip generation for a ponderation. The run itself is
// idempotent, so repeated triggers are safe.
func (s *PonderationService) Regenerate(ctx domain.Context, id string) error {
	if _, err := s.Ponderations.Get(ctx, id); err != nil {
		return fmt.Errorf("ponderations: %w", err)
	}
	if _, err := s.Queue.EnqueueTips(ctx, domain.TipsTaskPayload{PonderationID: id}); err != nil {
		return fmt.Errorf("ponderations: %w", err)
	}
	return nil
}
