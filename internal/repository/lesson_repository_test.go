package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

func TestLessonRepositoryListIndividualFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	approved := false
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "education_level_id", "lesson_date", "start_time", "hours", "total_cost", "approved", "price_locked", "deleted_at", "deletion_note", "created_at", "updated_at"}).
		AddRow("les-1", "tch-1", "stu-1", "lvl-1", time.Now(), "16:00", 1.5, 225.0, false, false, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, teacher_id, student_id(.+)deleted_at IS NULL(.+)teacher_id = \\$1").
		WithArgs("tch-1", false).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM individual_lessons")).
		WithArgs("tch-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	lessons, total, err := repo.ListIndividual(context.Background(), models.LessonFilter{
		TeacherID: "tch-1",
		Approved:  &approved,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, lessons, 1)
	require.False(t, lessons[0].Approved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCreateGroupWithParticipants(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_lessons")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_lesson_students")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO group_lesson_students")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	lesson := &models.GroupLesson{
		LessonCore: models.LessonCore{
			TeacherID:  "tch-1",
			LessonDate: time.Now(),
			StartTime:  "17:00",
			Hours:      2,
		},
		EducationLevelID: "lvl-1",
		ParticipantIDs:   []string{"stu-1", "stu-2"},
	}
	require.NoError(t, repo.CreateGroup(context.Background(), lesson))
	require.NotEmpty(t, lesson.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryApproveGuardsDeleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE remedial_lessons SET approved = TRUE, price_locked = TRUE")).
		WithArgs("les-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Approve(context.Background(), models.LessonTypeRemedial, "les-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCountApprovedRemedial(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM remedial_lessons WHERE student_id = $1 AND approved = TRUE AND deleted_at IS NULL")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountApprovedRemedial(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryApprovedGroupShares(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	rows := sqlmock.NewRows([]string{"student_id", "total"}).
		AddRow("stu-1", 120.0).
		AddRow("stu-2", 120.0)
	mock.ExpectQuery("SELECT gls.student_id, COALESCE\\(SUM\\(gl.total_cost / pc.participant_count\\), 0\\)").
		WillReturnRows(rows)

	shares, err := repo.ApprovedGroupShares(context.Background())
	require.NoError(t, err)
	require.Len(t, shares, 2)
	require.Equal(t, 120.0, shares[0].Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositorySoftDeleteByStudentRejectsGroup(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	err := repo.SoftDeleteByStudent(context.Background(), models.LessonTypeGroup, "stu-1", nil)
	require.Error(t, err)
}
