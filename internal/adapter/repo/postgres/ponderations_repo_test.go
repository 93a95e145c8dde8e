package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/opcdev/opc-evaluator/internal/adapter/repo/postgres"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

func finalizeWrite() domain.FinalizeWrite {
	return domain.FinalizeWrite{
		EvaluationID: "e1",
		StudentID:    "s1",
		Ponderation:  domain.Ponderation{StudentID: "s1", ScorePercent: 74, StatusGeneral: domain.StatusBom},
		Items: []domain.PonderationItem{
			{SectionID: "introducao", ItemID: "intro-01", Question: "O tema esta delimitado?", Observation: "Muito amplo"},
			{SectionID: "objetivos", ItemID: "obj-02", Question: "Os objetivos especificos sao mensuraveis?"},
		},
	}
}

func TestFinalizeCommitsAllWrites(t *testing.T) {
	tx := &txStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	pool := &poolStub{tx: tx}
	repo := postgres.NewPonderationRepo(pool)

	id, err := repo.Finalize(context.Background(), finalizeWrite())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)
	// ponderation + 2 items + evaluation flip + student flip
	require.Len(t, tx.execSQL, 5)
}

func TestFinalizeRollsBackOnWriteError(t *testing.T) {
	tx := &txStub{execErr: errors.New("disk full")}
	pool := &poolStub{tx: tx}
	repo := postgres.NewPonderationRepo(pool)

	_, err := repo.Finalize(context.Background(), finalizeWrite())
	require.Error(t, err)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}

func TestFinalizeEvaluationMissing(t *testing.T) {
	// RowsAffected()==0 on the evaluation update means the draft vanished.
	tx := &txStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	pool := &poolStub{tx: tx}
	repo := postgres.NewPonderationRepo(pool)

	_, err := repo.Finalize(context.Background(), finalizeWrite())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.True(t, tx.rolledBack)
}

func TestFinalizeBeginError(t *testing.T) {
	pool := &poolStub{beginErr: errors.New("pool closed")}
	repo := postgres.NewPonderationRepo(pool)
	_, err := repo.Finalize(context.Background(), finalizeWrite())
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=ponderation.finalize_begin")
}

func TestPonderationGetNotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewPonderationRepo(pool)
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListItemsScansRows(t *testing.T) {
	mk := func(id, section, item string) func(dest ...any) error {
		return func(dest ...any) error {
			*dest[0].(*string) = id
			*dest[1].(*string) = "p1"
			*dest[2].(*string) = section
			*dest[3].(*string) = item
			*dest[4].(*string) = "Pergunta"
			*dest[5].(*string) = ""
			return nil
		}
	}
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		mk("i1", "introducao", "intro-01"),
		mk("i2", "objetivos", "obj-02"),
	}}}
	repo := postgres.NewPonderationRepo(pool)
	items, err := repo.ListItems(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "intro-01", items[0].ItemID)
	require.Equal(t, "p1", items[1].PonderationID)
}
