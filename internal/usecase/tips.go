package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opcdev/opc-evaluator/internal/adapter/ai"
	"github.com/opcdev/opc-evaluator/internal/adapter/ai/tokencount"
	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/checklist"
	"github.com/opcdev/opc-evaluator/internal/domain"
	"github.com/opcdev/opc-evaluator/pkg/textx"
)

// Static fallback content. Fallback rows are terminal: once written they are
// never replaced by generated tips.
const (
	fallbackDiagnosis = "Não foi possível gerar a dica automaticamente."
	fallbackHowToFix  = "Consulte seu orientador para orientações sobre este item."
)

// TipsOptions tunes the generation pipeline.
type TipsOptions struct {
	Model             string
	ChunkSize         int
	Cooldown          time.Duration
	MaxTokensPerItem  int
	PromptTokenBudget int
}

// TipService generates remediation tips for the failed items of a
// ponderation. Runs are resumable and idempotent: items that already hold a
// tip are skipped, and every pending item ends the run with exactly one row,
// generated or fallback.
type TipService struct {
	Ponderations domain.PonderationRepository
	Students     domain.StudentRepository
	Tips         domain.TipRepository
	Model        domain.CompletionClient
	Docs         domain.DocumentFetcher

	opts    TipsOptions
	cleaner *ai.ResponseCleaner
	counter *tokencount.Counter

	// sleep is injectable so tests skip the real cooldown.
	sleep func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	inflight map[string]bool
}

// NewTipService wires a TipService.
func NewTipService(ponds domain.PonderationRepository, students domain.StudentRepository, tips domain.TipRepository, model domain.CompletionClient, docs domain.DocumentFetcher, opts TipsOptions) *TipService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 10
	}
	if opts.MaxTokensPerItem <= 0 {
		opts.MaxTokensPerItem = 400
	}
	if opts.PromptTokenBudget <= 0 {
		opts.PromptTokenBudget = 150000
	}
	return &TipService{
		Ponderations: ponds,
		Students:     students,
		Tips:         tips,
		Model:        model,
		Docs:         docs,
		opts:         opts,
		cleaner:      ai.NewResponseCleaner(),
		counter:      tokencount.NewCounter(),
		sleep:        sleepCtx,
		inflight:     map[string]bool{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Generate produces tips for every pending failed item of the ponderation.
// It returns an error only when the run cannot start (unknown ponderation,
// repository failure): generation failures inside the run resolve to
// fallback rows instead of propagating.
func (s *TipService) Generate(ctx domain.Context, ponderationID string) error {
	s.mu.Lock()
	if s.inflight[ponderationID] {
		s.mu.Unlock()
		slog.Info("tip run already in flight, skipping", slog.String("ponderation_id", ponderationID))
		return nil
	}
	s.inflight[ponderationID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, ponderationID)
		s.mu.Unlock()
	}()

	pond, err := s.Ponderations.Get(ctx, ponderationID)
	if err != nil {
		observability.TipRunsTotal.WithLabelValues("not_started").Inc()
		return fmt.Errorf("tips: %w", err)
	}
	items, err := s.Ponderations.ListItems(ctx, ponderationID)
	if err != nil {
		observability.TipRunsTotal.WithLabelValues("not_started").Inc()
		return fmt.Errorf("tips: %w", err)
	}
	if len(items) == 0 {
		slog.Info("ponderation has no failed items, nothing to generate",
			slog.String("ponderation_id", ponderationID))
		return nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	existing, err := s.Tips.ExistingItemIDs(ctx, ids)
	if err != nil {
		observability.TipRunsTotal.WithLabelValues("not_started").Inc()
		return fmt.Errorf("tips: %w", err)
	}
	var pending []domain.PonderationItem
	for _, it := range items {
		if !existing[it.ID] {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		slog.Info("all items already have tips",
			slog.String("ponderation_id", ponderationID))
		observability.TipRunsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	doc := s.fetchDocument(ctx, pond.StudentID)

	slog.Info("tip run started",
		slog.String("ponderation_id", ponderationID),
		slog.Int("pending", len(pending)),
		slog.Bool("grounded", doc != nil))

	chunks := chunkItems(pending, s.opts.ChunkSize)
	for i, chunk := range chunks {
		tips := s.processChunk(ctx, chunk, doc)
		for _, tip := range tips {
			if _, err := s.Tips.Create(ctx, tip); err != nil {
				// Likely a concurrent run won the write; the guard makes
				// duplicates harmless either way.
				slog.Warn("tip write failed",
					slog.String("ponderation_item_id", tip.PonderationItemID),
					slog.Any("error", err))
				continue
			}
			source := "generated"
			if tip.IsFallback {
				source = "fallback"
			}
			observability.TipsWrittenTotal.WithLabelValues(source).Inc()
		}
		if i < len(chunks)-1 {
			s.sleep(ctx, s.opts.Cooldown)
		}
	}

	observability.TipRunsTotal.WithLabelValues("completed").Inc()
	slog.Info("tip run completed", slog.String("ponderation_id", ponderationID))
	return nil
}

// fetchDocument resolves the student's project PDF. Any failure means
// ungrounded generation, never a failed run.
func (s *TipService) fetchDocument(ctx domain.Context, studentID string) []byte {
	if s.Docs == nil {
		return nil
	}
	student, err := s.Students.Get(ctx, studentID)
	if err != nil {
		slog.Warn("student lookup failed, generating without document",
			slog.String("student_id", studentID),
			slog.Any("error", err))
		return nil
	}
	if student.DocumentURL == "" {
		return nil
	}
	return s.Docs.Fetch(ctx, student.DocumentURL)
}

func chunkItems(items []domain.PonderationItem, size int) [][]domain.PonderationItem {
	var out [][]domain.PonderationItem
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	return append(out, items)
}

// tipPayload is one element of the model's JSON array answer, correlated to
// an item by its row id.
type tipPayload struct {
	ID               string  `json:"id"`
	Diagnosis        string  `json:"diagnosis"`
	HowToFix         string  `json:"howToFix"`
	PracticalExample *string `json:"practicalExample"`
}

// processChunk resolves one chunk to exactly one tip per item. The degrade
// ladder is: grounded call, ungrounded call, fallback rows.
func (s *TipService) processChunk(ctx domain.Context, chunk []domain.PonderationItem, doc []byte) []domain.AiTip {
	prompt := s.buildChunkPrompt(chunk)
	maxTokens := s.opts.MaxTokensPerItem * len(chunk)

	attemptDoc := doc
	if attemptDoc != nil && !s.documentFits(prompt, attemptDoc) {
		slog.Warn("document exceeds prompt budget, generating without it",
			slog.Int("doc_bytes", len(attemptDoc)))
		attemptDoc = nil
	}

	raw, err := s.Model.Complete(ctx, domain.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: maxTokens,
		Document:  attemptDoc,
	})
	if err != nil && attemptDoc != nil {
		slog.Warn("grounded completion failed, retrying without document",
			slog.Any("error", err))
		raw, err = s.Model.Complete(ctx, domain.CompletionRequest{
			Prompt:    prompt,
			MaxTokens: maxTokens,
		})
	}
	if err != nil {
		slog.Error("completion failed, writing fallback tips",
			slog.Int("items", len(chunk)),
			slog.Any("error", err))
		return fallbackTips(chunk)
	}

	return s.correlate(chunk, raw)
}

// documentFits estimates whether prompt plus embedded PDF stays inside the
// prompt token budget. PDF bytes are approximated at 3 bytes per token,
// which overshoots text-heavy documents and keeps the check conservative.
func (s *TipService) documentFits(prompt string, doc []byte) bool {
	promptTokens := s.counter.Estimate(prompt, s.opts.Model)
	docTokens := len(doc) / 3
	return promptTokens+docTokens <= s.opts.PromptTokenBudget
}

// correlate matches the model's answer objects to chunk items by row id.
// Items the answer misses, duplicates only count once, and objects with
// empty required fields all degrade to fallback rows.
func (s *TipService) correlate(chunk []domain.PonderationItem, raw string) []domain.AiTip {
	cleaned, err := s.cleaner.CleanAndValidateArray(raw)
	if err != nil {
		slog.Error("unparseable completion, writing fallback tips",
			slog.Int("items", len(chunk)),
			slog.Any("error", err))
		return fallbackTips(chunk)
	}
	var payloads []tipPayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		slog.Error("completion array has wrong shape, writing fallback tips",
			slog.Any("error", err))
		return fallbackTips(chunk)
	}

	byID := make(map[string]tipPayload, len(payloads))
	for _, p := range payloads {
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = p
		}
	}

	out := make([]domain.AiTip, 0, len(chunk))
	for _, it := range chunk {
		p, ok := byID[it.ID]
		if !ok || strings.TrimSpace(p.Diagnosis) == "" || strings.TrimSpace(p.HowToFix) == "" {
			slog.Warn("no usable answer for item, writing fallback",
				slog.String("ponderation_item_id", it.ID))
			out = append(out, fallbackTip(it.ID))
			continue
		}
		tip := domain.AiTip{
			PonderationItemID: it.ID,
			Diagnosis:         textx.SanitizeText(p.Diagnosis),
			HowToFix:          textx.SanitizeText(p.HowToFix),
		}
		if p.PracticalExample != nil {
			ex := textx.SanitizeText(*p.PracticalExample)
			if ex != "" {
				tip.PracticalExample = &ex
			}
		}
		out = append(out, tip)
	}
	return out
}

func fallbackTip(itemID string) domain.AiTip {
	return domain.AiTip{
		PonderationItemID: itemID,
		Diagnosis:         fallbackDiagnosis,
		HowToFix:          fallbackHowToFix,
		IsFallback:        true,
	}
}

func fallbackTips(chunk []domain.PonderationItem) []domain.AiTip {
	out := make([]domain.AiTip, 0, len(chunk))
	for _, it := range chunk {
		out = append(out, fallbackTip(it.ID))
	}
	return out
}

// buildChunkPrompt renders the batch instruction for one chunk. The answer
// must be a bare JSON array with one object per listed id.
func (s *TipService) buildChunkPrompt(chunk []domain.PonderationItem) string {
	var b strings.Builder
	b.WriteString("Você é um orientador acadêmico especialista em projetos de pesquisa e normas ABNT (NBR 15287:2025, NBR 6023:2025, NBR 10520).\n\n")
	b.WriteString("Um projeto de pesquisa foi avaliado com uma lista de verificação e os itens abaixo foram reprovados. ")
	b.WriteString("Para cada item, gere uma dica de correção específica e prática.\n\n")
	if len(chunk) > 0 {
		b.WriteString("Itens reprovados:\n")
	}
	for i, it := range chunk {
		fmt.Fprintf(&b, "%d. id: %s\n", i+1, it.ID)
		fmt.Fprintf(&b, "   Seção: %s\n", checklist.SectionTitle(it.SectionID))
		fmt.Fprintf(&b, "   Critério: %s\n", it.Question)
		if strings.TrimSpace(it.Observation) != "" {
			fmt.Fprintf(&b, "   Observação do avaliador: %s\n", it.Observation)
		}
	}
	b.WriteString("\nResponda APENAS com um array JSON válido, sem markdown e sem texto adicional. ")
	b.WriteString("O array deve conter exatamente um objeto para cada item listado, com os campos:\n")
	b.WriteString(`- "id": o id do item, copiado exatamente como listado acima` + "\n")
	b.WriteString(`- "diagnosis": diagnóstico objetivo do problema (1-2 frases, em português)` + "\n")
	b.WriteString(`- "howToFix": instruções práticas de correção (2-4 frases, em português)` + "\n")
	b.WriteString(`- "practicalExample": um exemplo prático curto, ou null se não se aplicar` + "\n")
	b.WriteString("\nSe o documento do projeto estiver anexado, fundamente as dicas no conteúdo real do documento.")
	return b.String()
}
