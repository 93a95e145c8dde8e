package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/opcdev/opc-evaluator/internal/domain"
)

// StudentRepo persists and loads students from PostgreSQL.
type StudentRepo struct{ Pool PgxPool }

// NewStudentRepo constructs a StudentRepo with the given pool.
func NewStudentRepo(p PgxPool) *StudentRepo { return &StudentRepo{Pool: p} }

const studentColumns = `id, name, email, course, project_topic, period, COALESCE(phone,''), COALESCE(notes,''), COALESCE(document_url,''), public_token, status, created_at, updated_at`

func scanStudent(row pgx.Row) (domain.Student, error) {
	var s domain.Student
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Course, &s.ProjectTopic, &s.Period,
		&s.Phone, &s.Notes, &s.DocumentURL, &s.PublicToken, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a new student and returns its id.
func (r *StudentRepo) Create(ctx domain.Context, s domain.Student) (string, error) {
	tracer := otel.Tracer("repo.students")
	ctx, span := tracer.Start(ctx, "students.Create")
	defer span.End()
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := s.Status
	if status == "" {
		status = domain.StudentActive
	}
	now := time.Now().UTC()
	q := `INSERT INTO students (id, name, email, course, project_topic, period, phone, notes, document_url, public_token, status, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.Pool.Exec(ctx, q, id, s.Name, s.Email, s.Course, s.ProjectTopic, s.Period,
		s.Phone, s.Notes, s.DocumentURL, uuid.New().String(), status, now, now)
	if err != nil {
		return "", fmt.Errorf("op=student.create: %w", err)
	}
	return id, nil
}

// Update overwrites a student's mutable fields.
func (r *StudentRepo) Update(ctx domain.Context, s domain.Student) error {
	tracer := otel.Tracer("repo.students")
	ctx, span := tracer.Start(ctx, "students.Update")
	defer span.End()
	q := `UPDATE students SET name=$2, email=$3, course=$4, project_topic=$5, period=$6, phone=$7, notes=$8, document_url=$9, status=$10, updated_at=$11 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Name, s.Email, s.Course, s.ProjectTopic, s.Period,
		s.Phone, s.Notes, s.DocumentURL, s.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=student.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=student.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a student; evaluations and ponderations cascade.
func (r *StudentRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.students")
	ctx, span := tracer.Start(ctx, "students.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM students WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=student.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=student.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads a student by id.
func (r *StudentRepo) Get(ctx domain.Context, id string) (domain.Student, error) {
	tracer := otel.Tracer("repo.students")
	ctx, span := tracer.Start(ctx, "students.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id=$1`, id)
	s, err := scanStudent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Student{}, fmt.Errorf("op=student.get: %w", domain.ErrNotFound)
		}
		return domain.Student{}, fmt.Errorf("op=student.get: %w", err)
	}
	return s, nil
}

// List returns a page of students plus the total count for the filter.
func (r *StudentRepo) List(ctx domain.Context, q domain.ListStudentsQuery) ([]domain.Student, int, error) {
	tracer := otel.Tracer("repo.students")
	ctx, span := tracer.Start(ctx, "students.List")
	defer span.End()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	// Sort columns are whitelisted; anything else falls back to created_at.
	sortCol := "created_at"
	if q.Sort == "name" {
		sortCol = "name"
	}
	dir := "DESC"
	if q.Order == "asc" {
		dir = "ASC"
	}

	where := ""
	args := []any{}
	if q.Search != "" {
		where = `WHERE name ILIKE $1 OR course ILIKE $1`
		args = append(args, "%"+q.Search+"%")
	}

	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM students `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=student.list_count: %w", err)
	}

	sel := fmt.Sprintf(`SELECT %s FROM students %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, where, sortCol, dir, limit, offset)
	rows, err := r.Pool.Query(ctx, sel, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("op=student.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("op=student.list_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("op=student.list_rows: %w", err)
	}
	return out, total, nil
}
