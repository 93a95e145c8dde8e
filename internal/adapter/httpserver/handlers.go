package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opcdev/opc-evaluator/internal/domain"
	"github.com/opcdev/opc-evaluator/internal/usecase"
)

// Server bundles the handlers for the evaluator API.
type Server struct {
	Students     *usecase.StudentService
	Evaluations  *usecase.EvaluationService
	Finalize     *usecase.FinalizeService
	Ponderations *usecase.PonderationService
	Dashboard    *usecase.DashboardService

	validate *validator.Validate
}

// NewServer constructs a Server.
func NewServer(students *usecase.StudentService, evals *usecase.EvaluationService, finalize *usecase.FinalizeService, ponds *usecase.PonderationService, dash *usecase.DashboardService) *Server {
	return &Server{
		Students:     students,
		Evaluations:  evals,
		Finalize:     finalize,
		Ponderations: ponds,
		Dashboard:    dash,
		validate:     validator.New(),
	}
}

func (s *Server) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid body: %w", domain.ErrInvalidArgument)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrInvalidArgument)
	}
	return nil
}

type studentRequest struct {
	Name         string `json:"name" validate:"required,min=2"`
	Email        string `json:"email" validate:"required,email"`
	Course       string `json:"course"`
	ProjectTopic string `json:"projectTopic"`
	Period       string `json:"period"`
	Phone        string `json:"phone"`
	Notes        string `json:"notes"`
	DocumentURL  string `json:"documentUrl" validate:"omitempty,url"`
	Status       string `json:"status" validate:"omitempty,oneof=active in_review approved inactive"`
}

type studentResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Course       string `json:"course"`
	ProjectTopic string `json:"projectTopic"`
	Period       string `json:"period"`
	Phone        string `json:"phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
	DocumentURL  string `json:"documentUrl,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func toStudentResponse(st domain.Student) studentResponse {
	return studentResponse{
		ID:           st.ID,
		Name:         st.Name,
		Email:        st.Email,
		Course:       st.Course,
		ProjectTopic: st.ProjectTopic,
		Period:       st.Period,
		Phone:        st.Phone,
		Notes:        st.Notes,
		DocumentURL:  st.DocumentURL,
		Status:       string(st.Status),
		CreatedAt:    st.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    st.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HandleCreateStudent registers a new student.
func (s *Server) HandleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	id, err := s.Students.Create(r.Context(), domain.Student{
		Name:         req.Name,
		Email:        req.Email,
		Course:       req.Course,
		ProjectTopic: req.ProjectTopic,
		Period:       req.Period,
		Phone:        req.Phone,
		Notes:        req.Notes,
		DocumentURL:  req.DocumentURL,
		Status:       domain.StudentStatus(req.Status),
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// HandleListStudents lists students with search, sort and paging.
func (s *Server) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	students, total, err := s.Students.List(r.Context(), domain.ListStudentsQuery{
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for _, st := range students {
		out = append(out, toStudentResponse(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out, "total": total})
}

// HandleGetStudent returns one student.
func (s *Server) HandleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.Students.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// HandleUpdateStudent overwrites a student's mutable fields.
func (s *Server) HandleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	status := domain.StudentStatus(req.Status)
	if status == "" {
		status = domain.StudentActive
	}
	err := s.Students.Update(r.Context(), domain.Student{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		Email:        req.Email,
		Course:       req.Course,
		ProjectTopic: req.ProjectTopic,
		Period:       req.Period,
		Phone:        req.Phone,
		Notes:        req.Notes,
		DocumentURL:  req.DocumentURL,
		Status:       status,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleDeleteStudent removes a student and, by cascade, their history.
func (s *Server) HandleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.Students.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createEvaluationRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// HandleCreateEvaluation opens a draft for a student.
func (s *Server) HandleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req createEvaluationRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	id, err := s.Evaluations.CreateDraft(r.Context(), req.StudentID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// HandleGetEvaluation returns a draft with its answers.
func (s *Server) HandleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, err := s.Evaluations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        eval.ID,
		"studentId": eval.StudentID,
		"status":    eval.Status,
		"items":     eval.Items,
	})
}

type saveItemsRequest struct {
	Items []domain.Answer `json:"items" validate:"required"`
}

// HandleSaveItems replaces the draft's answers.
func (s *Server) HandleSaveItems(w http.ResponseWriter, r *http.Request) {
	var req saveItemsRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	if err := s.Evaluations.SaveItems(r.Context(), chi.URLParam(r, "id"), req.Items); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleListStudentEvaluations lists a student's evaluations.
func (s *Server) HandleListStudentEvaluations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	evals, err := s.Evaluations.ListByStudent(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": evals})
}

// HandleFinalize validates and finalizes a draft. Validation failures carry
// structured details so the form can highlight what is missing.
func (s *Server) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	res, err := s.Finalize.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var incomplete *domain.IncompleteAnswersError
		if errors.As(err, &incomplete) {
			writeError(w, r, err, map[string]any{
				"answered": incomplete.Answered,
				"required": incomplete.Required,
			})
			return
		}
		var missing *domain.MissingObservationsError
		if errors.As(err, &missing) {
			writeError(w, r, err, map[string]any{
				"missingSections": missing.SectionIDs,
				"sectionTitles":   missing.SectionTitles,
			})
			return
		}
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleListPonderations lists recent ponderations.
func (s *Server) HandleListPonderations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.Ponderations.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ponderations": out})
}

// HandleGetPonderation returns the full checklist reconstruction.
func (s *Server) HandleGetPonderation(w http.ResponseWriter, r *http.Request) {
	detail, err := s.Ponderations.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleRegenerateTips re-enqueues tip generation; the work happens in the
// worker, so the answer is 202.
func (s *Server) HandleRegenerateTips(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Ponderations.Regenerate(r.Context(), id); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ponderationId": id, "status": "queued"})
}

// HandleDashboard returns the advisor dashboard aggregates.
func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Dashboard.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
