// Package usecase implements the application services: finalize, tip
// generation and the CRUD surfaces around them. Services hold their ports as
// struct fields and stay free of transport concerns.
package usecase

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/checklist"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

// Score tier boundaries: bom at 70 and above, atencao from 40 to 69,
// critico below 40.
const (
	tierBom     = 70
	tierAtencao = 40
)

// FinalizeService turns a complete evaluation draft into an immutable scored
// ponderation and hands tip generation to the worker.
type FinalizeService struct {
	Evaluations  domain.EvaluationRepository
	Ponderations domain.PonderationRepository
	Queue        domain.TipQueue
}

// NewFinalizeService wires a FinalizeService.
func NewFinalizeService(evals domain.EvaluationRepository, ponds domain.PonderationRepository, q domain.TipQueue) *FinalizeService {
	return &FinalizeService{Evaluations: evals, Ponderations: ponds, Queue: q}
}

// Finalize validates the draft, scores it, persists the ponderation snapshot
// atomically and enqueues tip generation. The enqueue is fire-and-forget: a
// queue failure is logged but never rolls back the finalization.
func (s *FinalizeService) Finalize(ctx domain.Context, evaluationID string) (domain.FinalizeResult, error) {
	eval, err := s.Evaluations.Get(ctx, evaluationID)
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("finalize: %w", err)
	}
	if eval.Status == domain.EvaluationFinalized {
		return domain.FinalizeResult{}, &domain.AlreadyFinalizedError{EvaluationID: evaluationID}
	}

	answered := 0
	yes := 0
	for _, it := range eval.Items {
		if it.Answer == nil {
			continue
		}
		answered++
		if *it.Answer {
			yes++
		}
	}
	if answered < checklist.TotalItems {
		return domain.FinalizeResult{}, &domain.IncompleteAnswersError{
			Answered: answered,
			Required: checklist.TotalItems,
		}
	}

	// Every "no" needs an observation. Offending sections are reported once
	// each, in order of first appearance.
	var missingIDs []string
	seen := map[string]bool{}
	for _, it := range eval.Items {
		if it.Answer == nil || *it.Answer {
			continue
		}
		if strings.TrimSpace(it.Observation) != "" {
			continue
		}
		if !seen[it.SectionID] {
			seen[it.SectionID] = true
			missingIDs = append(missingIDs, it.SectionID)
		}
	}
	if len(missingIDs) > 0 {
		titles := make([]string, len(missingIDs))
		for i, id := range missingIDs {
			titles[i] = checklist.SectionTitle(id)
		}
		return domain.FinalizeResult{}, &domain.MissingObservationsError{
			SectionIDs:    missingIDs,
			SectionTitles: titles,
		}
	}

	no := checklist.TotalItems - yes
	score := int(math.Round(100 * float64(yes) / float64(checklist.TotalItems)))
	status := domain.StatusCritico
	switch {
	case score >= tierBom:
		status = domain.StatusBom
	case score >= tierAtencao:
		status = domain.StatusAtencao
	}

	// Snapshot the failed items with their question text. A catalog miss
	// keeps the raw item id so the snapshot never loses the row.
	var items []domain.PonderationItem
	for _, it := range eval.Items {
		if it.Answer == nil || *it.Answer {
			continue
		}
		question, ok := checklist.Question(it.SectionID, it.ItemID)
		if !ok {
			question = it.ItemID
		}
		items = append(items, domain.PonderationItem{
			SectionID:   it.SectionID,
			ItemID:      it.ItemID,
			Question:    question,
			Observation: it.Observation,
		})
	}

	pondID, err := s.Ponderations.Finalize(ctx, domain.FinalizeWrite{
		EvaluationID: evaluationID,
		StudentID:    eval.StudentID,
		Ponderation: domain.Ponderation{
			StudentID:     eval.StudentID,
			ScorePercent:  score,
			StatusGeneral: status,
		},
		Items: items,
	})
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("finalize: %w", err)
	}
	observability.FinalizationsTotal.WithLabelValues(string(status)).Inc()

	if s.Queue != nil && len(items) > 0 {
		if _, err := s.Queue.EnqueueTips(ctx, domain.TipsTaskPayload{PonderationID: pondID}); err != nil {
			slog.Error("tip enqueue failed, tips can be regenerated on demand",
				slog.String("ponderation_id", pondID),
				slog.Any("error", err))
		}
	}

	slog.Info("evaluation finalized",
		slog.String("evaluation_id", evaluationID),
		slog.String("ponderation_id", pondID),
		slog.Int("score", score),
		slog.String("status", string(status)),
		slog.Int("failed_items", len(items)))

	return domain.FinalizeResult{
		PonderationID: pondID,
		ScorePercent:  score,
		StatusGeneral: status,
		Positives:     yes,
		Negatives:     no,
	}, nil
}
