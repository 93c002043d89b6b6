package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryListExcludesDeletedByDefault(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "full_name", "parent_phone", "education_level_id", "class_label", "deleted_at", "created_at", "updated_at", "level_name_ar", "level_name_en"}).
		AddRow("stu-1", "أحمد خالد", "0501234567", "lvl-1", nil, nil, time.Now(), time.Now(), "الصف الأول", "Grade 1")
	mock.ExpectQuery("SELECT s.id, s.full_name(.+)s.deleted_at IS NULL").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(s.id)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, students, 1)
	require.Equal(t, "أحمد خالد", students[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		FullName:         "سارة محمد",
		ParentPhone:      "0559876543",
		EducationLevelID: "lvl-2",
	}
	require.NoError(t, repo.Create(context.Background(), student))
	require.NotEmpty(t, student.ID)

	rows := sqlmock.NewRows([]string{"id", "full_name", "parent_phone", "education_level_id", "class_label", "deleted_at", "created_at", "updated_at", "level_name_ar", "level_name_en"}).
		AddRow(student.ID, "سارة محمد", "0559876543", "lvl-2", nil, nil, time.Now(), time.Now(), "الصف الثاني", "Grade 2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.full_name")).
		WithArgs(student.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.Equal(t, student.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE full_name = $1 AND deleted_at IS NULL")).
		WithArgs("أحمد خالد").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByName(context.Background(), "أحمد خالد", "")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students")).
		WithArgs("اسم جديد").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	exists, err = repo.ExistsByName(context.Background(), "اسم جديد", "")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET deleted_at = $2")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "stu-1", time.Now().UTC()))
	require.NoError(t, mock.ExpectationsWereMet())
}
