// Package domain holds the core entities, error taxonomy and ports of the
// checklist evaluator. It stays free of transport and persistence concerns.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Context is an alias to context.Context so ports read uniformly.
type Context = context.Context

// StudentStatus enumerates the advisory lifecycle of a student.
type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInReview StudentStatus = "in_review"
	StudentApproved StudentStatus = "approved"
	StudentInactive StudentStatus = "inactive"
)

// Student is an advisee with an optional link to their project PDF.
type Student struct {
	ID           string
	Name         string
	Email        string
	Course       string
	ProjectTopic string
	Period       string
	Phone        string
	Notes        string
	DocumentURL  string
	PublicToken  string
	Status       StudentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EvaluationStatus is the draft/finalized state of an evaluation.
type EvaluationStatus string

const (
	EvaluationDraft     EvaluationStatus = "draft"
	EvaluationFinalized EvaluationStatus = "finalized"
)

// Answer is one checklist item response inside an evaluation draft.
// Answer==nil means unanswered; false answers are expected to carry an
// observation before the evaluation can be finalized.
type Answer struct {
	SectionID   string `json:"sectionId"`
	ItemID      string `json:"itemId"`
	Answer      *bool  `json:"answer"`
	Observation string `json:"observation,omitempty"`
}

// Evaluation is mutable while draft and immutable once finalized.
type Evaluation struct {
	ID        string           `json:"id"`
	StudentID string           `json:"studentId"`
	Status    EvaluationStatus `json:"status"`
	Items     []Answer         `json:"items"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// PonderationStatus is the score tier of a ponderation.
type PonderationStatus string

const (
	StatusBom     PonderationStatus = "bom"
	StatusAtencao PonderationStatus = "atencao"
	StatusCritico PonderationStatus = "critico"
)

// Ponderation is the scored snapshot created when an evaluation is finalized.
type Ponderation struct {
	ID            string            `json:"id"`
	StudentID     string            `json:"studentId"`
	ScorePercent  int               `json:"scorePercent"`
	StatusGeneral PonderationStatus `json:"statusGeneral"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// PonderationItem is one failed ("no") checklist item, with the question text
// captured at finalize time.
type PonderationItem struct {
	ID            string `json:"id"`
	PonderationID string `json:"ponderationId"`
	SectionID     string `json:"sectionId"`
	ItemID        string `json:"itemId"`
	Question      string `json:"question"`
	Observation   string `json:"observation,omitempty"`
}

// AiTip is the generated remediation guidance for one failed item. A row is
// terminal: fallback tips are never replaced by later generated ones.
type AiTip struct {
	ID                string    `json:"id"`
	PonderationItemID string    `json:"ponderationItemId"`
	Diagnosis         string    `json:"diagnosis"`
	HowToFix          string    `json:"howToFix"`
	PracticalExample  *string   `json:"practicalExample,omitempty"`
	IsFallback        bool      `json:"isFallback"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// PonderationSummary is the list-view projection joined with the student name.
type PonderationSummary struct {
	ID            string            `json:"id"`
	StudentName   string            `json:"studentName"`
	ScorePercent  int               `json:"scorePercent"`
	StatusGeneral PonderationStatus `json:"statusGeneral"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// FinalizeResult is returned synchronously from a successful finalize call.
type FinalizeResult struct {
	PonderationID string            `json:"ponderationId"`
	ScorePercent  int               `json:"scorePercent"`
	StatusGeneral PonderationStatus `json:"statusGeneral"`
	Positives     int               `json:"positivos"`
	Negatives     int               `json:"negativos"`
}

// FinalizeWrite is the single logical unit of work applied when an evaluation
// is finalized: create the ponderation with its items, flip the evaluation to
// finalized and move the student into review. Repositories apply it in one
// transaction.
type FinalizeWrite struct {
	EvaluationID string
	StudentID    string
	Ponderation  Ponderation
	Items        []PonderationItem
}

// DashboardStats is the aggregate projection behind the advisor dashboard.
type DashboardStats struct {
	TotalStudents      int                       `json:"totalStudents"`
	StudentsByStatus   map[StudentStatus]int     `json:"studentsByStatus"`
	TotalPonderations  int                       `json:"totalPonderations"`
	PonderationsByTier map[PonderationStatus]int `json:"ponderationsByTier"`
	AverageScore       float64                   `json:"averageScore"`
	TipsGenerated      int                       `json:"tipsGenerated"`
	TipsFallback       int                       `json:"tipsFallback"`
}

// ListStudentsQuery carries paging/search/sort parameters for student lists.
type ListStudentsQuery struct {
	Search string
	Sort   string
	Order  string
	Page   int
	Limit  int
}

// Repositories (ports)

type StudentRepository interface {
	Create(ctx Context, s Student) (string, error)
	Update(ctx Context, s Student) error
	Delete(ctx Context, id string) error
	Get(ctx Context, id string) (Student, error)
	List(ctx Context, q ListStudentsQuery) ([]Student, int, error)
}

type EvaluationRepository interface {
	Create(ctx Context, e Evaluation) (string, error)
	UpdateItems(ctx Context, id string, items []Answer) error
	Get(ctx Context, id string) (Evaluation, error)
	ListByStudent(ctx Context, studentID string, limit int) ([]Evaluation, error)
}

type PonderationRepository interface {
	// Finalize applies a FinalizeWrite atomically and returns the new
	// ponderation id.
	Finalize(ctx Context, w FinalizeWrite) (string, error)
	Get(ctx Context, id string) (Ponderation, error)
	List(ctx Context, limit int) ([]PonderationSummary, error)
	ListItems(ctx Context, ponderationID string) ([]PonderationItem, error)
}

type StatsRepository interface {
	Dashboard(ctx Context) (DashboardStats, error)
}

type TipRepository interface {
	Create(ctx Context, t AiTip) (string, error)
	// ExistingItemIDs reports which of the given ponderation item ids already
	// hold at least one tip. This is the resume guard's query.
	ExistingItemIDs(ctx Context, itemIDs []string) (map[string]bool, error)
	ListByItemIDs(ctx Context, itemIDs []string) (map[string]AiTip, error)
}

// TipQueue (port) hands the tip-generation task off to the worker.

type TipsTaskPayload struct {
	PonderationID string `json:"ponderationId"`
}

type TipQueue interface {
	EnqueueTips(ctx Context, payload TipsTaskPayload) (string, error)
}

// CompletionClient (port) is the single external completion API call pattern:
// an instruction prompt, an optional PDF for grounding, a bounded number of
// output tokens, a text completion back.

type CompletionRequest struct {
	Prompt    string
	MaxTokens int
	// Document, when non-nil, is raw PDF bytes embedded base64 as grounding
	// context.
	Document []byte
}

type CompletionClient interface {
	Complete(ctx Context, req CompletionRequest) (string, error)
}

// DocumentFetcher (port) retrieves the student's source PDF. It never fails:
// every error degrades to a nil result.
type DocumentFetcher interface {
	Fetch(ctx Context, url string) []byte
}
