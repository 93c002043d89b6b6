package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	require.True(t, IsUniqueViolation(fmt.Errorf("create tier: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	require.False(t, IsUniqueViolation(sql.ErrNoRows))
	require.False(t, IsUniqueViolation(nil))
}

func TestPricingRepositoryFindRule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPricingRepository(db)
	rows := sqlmock.NewRows([]string{"id", "education_level_id", "lesson_type", "price_per_hour", "created_at", "updated_at"}).
		AddRow("rule-1", "lvl-1", "individual", 150.0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, education_level_id, lesson_type, price_per_hour")).
		WithArgs("lvl-1", models.LessonTypeIndividual).
		WillReturnRows(rows)

	rule, err := repo.FindRule(context.Background(), "lvl-1", models.LessonTypeIndividual)
	require.NoError(t, err)
	require.Equal(t, 150.0, rule.PricePerHour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, education_level_id, lesson_type, price_per_hour")).
		WithArgs("lvl-9", models.LessonTypeIndividual).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindRule(context.Background(), "lvl-9", models.LessonTypeIndividual)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRepositoryUpsertRule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPricingRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pricing_rules")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rule := &models.PricingRule{
		EducationLevelID: "lvl-1",
		LessonType:       models.LessonTypeIndividual,
		PricePerHour:     175,
	}
	require.NoError(t, repo.UpsertRule(context.Background(), rule))
	require.NotEmpty(t, rule.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRepositoryDeleteTierNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPricingRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_pricing_tiers")).
		WithArgs("tier-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteTier(context.Background(), "tier-x")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRepositoryRemedialSettingsRoundTrip(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPricingRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO remedial_rate_settings")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	settings := &models.RemedialRateSettings{
		InitialRate:     100,
		SubsequentRate:  80,
		LessonThreshold: 1,
	}
	require.NoError(t, repo.SaveRemedialSettings(context.Background(), settings))

	rows := sqlmock.NewRows([]string{"id", "initial_rate", "subsequent_rate", "lesson_threshold", "updated_at"}).
		AddRow(settings.ID, 100.0, 80.0, 1, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, initial_rate, subsequent_rate, lesson_threshold")).
		WillReturnRows(rows)

	loaded, err := repo.RemedialSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 80.0, loaded.SubsequentRate)
	require.NoError(t, mock.ExpectationsWereMet())
}
