package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var courseRowColumns = []string{"id", "code", "name", "academic_year", "crn", "owner_id", "instructor_email", "archived", "created_at"}

func TestCourseRepositoryFindActiveBySelector(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows(courseRowColumns).
		AddRow("course-1", "COP3530", "Data Structures", 2025, "12345", "owner-1", "prof@uni.edu", false, time.Now()).
		AddRow("course-2", "COP3530", "Data Structures", 2025, "12346", "owner-2", "", false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (LOWER(c.code) = LOWER($1) OR c.crn = $1) AND c.archived = FALSE")).
		WithArgs("cop3530").
		WillReturnRows(rows)

	courses, err := repo.FindActiveBySelector(context.Background(), "cop3530")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.Equal(t, "prof@uni.edu", courses[0].InstructorEmail)
	require.Equal(t, "12346", courses[1].CRN)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}
