package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/opcdev/opc-evaluator/internal/adapter/repo/postgres"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

func TestStudentCreateReturnsID(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewStudentRepo(pool)
	id, err := repo.Create(context.Background(), domain.Student{Name: "Ana", Email: "ana@uni.br"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestStudentCreateExecError(t *testing.T) {
	pool := &poolStub{execErr: errors.New("boom")}
	repo := postgres.NewStudentRepo(pool)
	_, err := repo.Create(context.Background(), domain.Student{Name: "Ana"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=student.create")
}

func TestStudentUpdateNotFound(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := postgres.NewStudentRepo(pool)
	err := repo.Update(context.Background(), domain.Student{ID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStudentDeleteNotFound(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
	repo := postgres.NewStudentRepo(pool)
	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStudentGetNotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewStudentRepo(pool)
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStudentGetScansRow(t *testing.T) {
	now := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = "s1"
		*dest[1].(*string) = "Ana"
		*dest[2].(*string) = "ana@uni.br"
		*dest[3].(*string) = "Enfermagem"
		*dest[4].(*string) = "Dor cronica"
		*dest[5].(*string) = "2026.1"
		*dest[6].(*string) = ""
		*dest[7].(*string) = ""
		*dest[8].(*string) = "https://drive.google.com/file/d/abc/view"
		*dest[9].(*string) = "tok"
		*dest[10].(*domain.StudentStatus) = domain.StudentActive
		*dest[11].(*time.Time) = now
		*dest[12].(*time.Time) = now
		return nil
	}}}
	repo := postgres.NewStudentRepo(pool)
	s, err := repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "Ana", s.Name)
	require.Equal(t, domain.StudentActive, s.Status)
	require.Equal(t, "https://drive.google.com/file/d/abc/view", s.DocumentURL)
}

func TestStudentListCountError(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return errors.New("count failed") }}}
	repo := postgres.NewStudentRepo(pool)
	_, _, err := repo.List(context.Background(), domain.ListStudentsQuery{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=student.list_count")
}
