package repo

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
)

func newMock(t *testing.T, dialect db.Dialect) (Repo, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return Repo{DB: conn, Dialect: dialect}, mock, conn
}

func TestSwapCaseStateReportsLostRace(t *testing.T) {
	r, mock, conn := newMock(t, db.Postgres)
	ctx := context.Background()
	ex := "ex-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cases SET status=$1, responsible_id=$2, updated_at=$3
WHERE id=$4 AND status=$5 AND COALESCE(responsible_id,'')=$6`)).
		WithArgs("IN_PROGRESS", ex, "2024-01-01T00:00:00.000000Z", "case-1", "NEW", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	ok, err := r.SwapCaseState(ctx, tx,
		"case-1",
		CaseState{Status: domain.StatusNew},
		CaseState{Status: domain.StatusInProgress, ResponsibleID: &ex},
		"2024-01-01T00:00:00.000000Z")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCaseCollisionIsNotAnError(t *testing.T) {
	r, mock, conn := newMock(t, db.SQLite)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cases(`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	ok, err := r.InsertCase(ctx, tx, domain.Case{ID: "c", PublicID: 123456, Status: domain.StatusNew})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUserMapsUniqueViolation(t *testing.T) {
	r, mock, conn := newMock(t, db.Postgres)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users(`)).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = r.InsertUser(ctx, tx, domain.User{ID: "u", Username: "dup", Role: domain.RoleAdmin})
	assert.True(t, errors.Is(err, ErrConflict))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCaseNotFound(t *testing.T) {
	r, mock, _ := newMock(t, db.SQLite)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + caseColumns + ` FROM cases WHERE id=?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := r.GetCase(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScopeClause(t *testing.T) {
	cases := []struct {
		name  string
		scope policy.Scope
		want  string
		args  int
	}{
		{"admin", policy.Scope{All: true}, "", 0},
		{"empty", policy.Scope{}, "1=0", 0},
		{"operator", policy.Scope{AuthorID: "op"}, "(author_id = ?)", 1},
		{"executor", policy.Scope{NewPool: true, ResponsibleID: "ex", CategoryIDs: []string{"a", "b"}},
			"(status = ? OR responsible_id = ? OR category_id IN (?,?))", 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, args := scopeClause(tc.scope)
			assert.Equal(t, tc.want, got)
			assert.Len(t, args, tc.args)
		})
	}
}

func TestListCasesAppliesScopeBeforeFilters(t *testing.T) {
	r, mock, _ := newMock(t, db.Postgres)
	f := CaseFilters{
		Scope:    policy.Scope{AuthorID: "op"},
		Statuses: []domain.Status{domain.StatusNew},
		Limit:    10,
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM cases WHERE 1=1 AND (author_id = $1) AND status IN ($2)`)).
		WithArgs("op", "NEW").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`)).
		WithArgs("op", "NEW", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, total, err := r.ListCases(context.Background(), nil, f)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseOrder(t *testing.T) {
	assert.Equal(t, "created_at DESC, id DESC", caseOrder(""))
	assert.Equal(t, "public_id ASC, id ASC", caseOrder("public_id"))
	assert.Equal(t, "updated_at DESC, id DESC", caseOrder("-updated_at"))
	assert.True(t, ValidCaseOrder("-status"))
	assert.False(t, ValidCaseOrder("summary"))
}
