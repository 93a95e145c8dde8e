package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/opcdev/opc-evaluator/internal/checklist"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

type fakeEvalRepo struct {
	eval    domain.Evaluation
	getErr  error
	updated [][]domain.Answer
}

func (f *fakeEvalRepo) Create(_ domain.Context, e domain.Evaluation) (string, error) {
	return "e1", nil
}
func (f *fakeEvalRepo) UpdateItems(_ domain.Context, _ string, items []domain.Answer) error {
	f.updated = append(f.updated, items)
	return nil
}
func (f *fakeEvalRepo) Get(_ domain.Context, _ string) (domain.Evaluation, error) {
	return f.eval, f.getErr
}
func (f *fakeEvalRepo) ListByStudent(_ domain.Context, _ string, _ int) ([]domain.Evaluation, error) {
	return nil, nil
}

type fakePondRepo struct {
	pond        domain.Ponderation
	items       []domain.PonderationItem
	getErr      error
	listErr     error
	finalized   []domain.FinalizeWrite
	finalizeErr error
}

func (f *fakePondRepo) Finalize(_ domain.Context, w domain.FinalizeWrite) (string, error) {
	if f.finalizeErr != nil {
		return "", f.finalizeErr
	}
	f.finalized = append(f.finalized, w)
	return "pond-1", nil
}
func (f *fakePondRepo) Get(_ domain.Context, _ string) (domain.Ponderation, error) {
	return f.pond, f.getErr
}
func (f *fakePondRepo) List(_ domain.Context, _ int) ([]domain.PonderationSummary, error) {
	return nil, nil
}
func (f *fakePondRepo) ListItems(_ domain.Context, _ string) ([]domain.PonderationItem, error) {
	return f.items, f.listErr
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (f *fakeQueue) EnqueueTips(_ domain.Context, p domain.TipsTaskPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, p.PonderationID)
	return p.PonderationID, nil
}

type fakeTipRepo struct {
	existing map[string]bool
	created  []domain.AiTip
}

func (f *fakeTipRepo) Create(_ domain.Context, t domain.AiTip) (string, error) {
	f.created = append(f.created, t)
	return fmt.Sprintf("t%d", len(f.created)), nil
}
func (f *fakeTipRepo) ExistingItemIDs(_ domain.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		if f.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}
func (f *fakeTipRepo) ListByItemIDs(_ domain.Context, _ []string) (map[string]domain.AiTip, error) {
	return map[string]domain.AiTip{}, nil
}

type fakeStudentRepo struct {
	student domain.Student
	getErr  error
}

func (f *fakeStudentRepo) Create(_ domain.Context, _ domain.Student) (string, error) {
	return "s1", nil
}
func (f *fakeStudentRepo) Update(_ domain.Context, _ domain.Student) error { return nil }
func (f *fakeStudentRepo) Delete(_ domain.Context, _ string) error         { return nil }
func (f *fakeStudentRepo) Get(_ domain.Context, _ string) (domain.Student, error) {
	return f.student, f.getErr
}
func (f *fakeStudentRepo) List(_ domain.Context, _ domain.ListStudentsQuery) ([]domain.Student, int, error) {
	return nil, 0, nil
}

// fakeModel answers each prompt with a valid JSON array covering every id it
// finds in the prompt, or fails per the configured error schedule.
type fakeModel struct {
	calls []domain.CompletionRequest
	// errOn returns an error for the given 1-based call number.
	errOn func(call int, req domain.CompletionRequest) error
	// respond overrides the default id-echo answer.
	respond func(req domain.CompletionRequest) string
}

var promptIDRe = regexp.MustCompile(`(?m)^\d+\. id: (\S+)$`)

func (f *fakeModel) Complete(_ domain.Context, req domain.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.errOn != nil {
		if err := f.errOn(len(f.calls), req); err != nil {
			return "", err
		}
	}
	if f.respond != nil {
		return f.respond(req), nil
	}
	out := "["
	for i, m := range promptIDRe.FindAllStringSubmatch(req.Prompt, -1) {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"id":%q,"diagnosis":"diag-%s","howToFix":"fix-%s","practicalExample":null}`, m[1], m[1], m[1])
	}
	return out + "]", nil
}

type fakeFetcher struct {
	data  []byte
	calls int
}

func (f *fakeFetcher) Fetch(_ domain.Context, _ string) []byte {
	f.calls++
	return f.data
}

var errBoom = errors.New("boom")

// fullAnswers builds answers for the whole catalog, failing the first
// noCount items; failed answers carry an observation when withObs is true.
func fullAnswers(noCount int, withObs bool) []domain.Answer {
	var out []domain.Answer
	n := 0
	for _, sec := range checklist.Sections {
		for _, item := range sec.Items {
			v := true
			obs := ""
			if n < noCount {
				v = false
				if withObs {
					obs = "observação " + strconv.Itoa(n)
				}
			}
			n++
			ans := v
			out = append(out, domain.Answer{
				SectionID:   sec.ID,
				ItemID:      item.ID,
				Answer:      &ans,
				Observation: obs,
			})
		}
	}
	return out
}

// pondItems builds n snapshot items with sequential row ids.
func pondItems(n int) []domain.PonderationItem {
	out := make([]domain.PonderationItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.PonderationItem{
			ID:            fmt.Sprintf("i%d", i+1),
			PonderationID: "pond-1",
			SectionID:     "introducao",
			ItemID:        fmt.Sprintf("intro-%02d", i+1),
			Question:      fmt.Sprintf("Pergunta %d", i+1),
			Observation:   "obs",
		})
	}
	return out
}
