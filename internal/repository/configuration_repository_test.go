package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/models"
)

func strPtr(value string) *string {
	return &value
}

func TestConfigurationRepositoryListByKeys(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	rows := sqlmock.NewRows([]string{"key", "value", "type", "description", "updated_by", "updated_at"}).
		AddRow(models.ConfigReferralDiscountPercentage, "12.5", "DECIMAL", nil, "admin-1", time.Now())
	mock.ExpectQuery("SELECT key, value").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	result, err := repo.ListByKeys(context.Background(), []string{models.ConfigReferralDiscountPercentage, models.ConfigReferralPointsPerReferral})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "12.5", result[0].Value)
	assert.Nil(t, result[0].Description)
}

func TestConfigurationRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO configurations").
		WithArgs(models.ConfigReferralDiscountPercentage, "15", "DECIMAL", sqlmock.AnyArg(), "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO configurations").
		WithArgs(models.ConfigReferralPointsPerReferral, "20", "INTEGER", sqlmock.AnyArg(), "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.Configuration{
		{Key: models.ConfigReferralDiscountPercentage, Value: "15", Type: models.ConfigurationTypeDecimal, UpdatedBy: strPtr("admin-1")},
		{Key: models.ConfigReferralPointsPerReferral, Value: "20", Type: models.ConfigurationTypeInteger, UpdatedBy: strPtr("admin-1")},
	}
	require.NoError(t, repo.BulkUpsert(context.Background(), items))
	assert.False(t, items[0].UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigurationRepositoryBulkUpsertRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO configurations").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.BulkUpsert(context.Background(), []models.Configuration{{Key: "k", Value: "v", Type: models.ConfigurationTypeString}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
