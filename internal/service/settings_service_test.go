package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	appErrors "github.com/noah-isme/rdc-learning-api/pkg/errors"
)

type mockConfigurationStore struct {
	rows    map[string]models.Configuration
	reads   int
	listErr error
}

func newMockConfigurationStore(rows ...models.Configuration) *mockConfigurationStore {
	m := &mockConfigurationStore{rows: map[string]models.Configuration{}}
	for _, r := range rows {
		m.rows[r.Key] = r
	}
	return m
}

func (m *mockConfigurationStore) ListByKeys(ctx context.Context, keys []string) ([]models.Configuration, error) {
	m.reads++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Configuration
	for _, k := range keys {
		if r, ok := m.rows[k]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockConfigurationStore) BulkUpsert(ctx context.Context, cfgs []models.Configuration) error {
	for _, c := range cfgs {
		m.rows[c.Key] = c
	}
	return nil
}

func TestDefaultReferralSettings(t *testing.T) {
	s := DefaultReferralSettings("12.5", 20)
	assert.True(t, s.ReferredDiscountPercentage.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 20, s.PointsPerReferral)

	s = DefaultReferralSettings("abc", -1)
	assert.True(t, s.ReferredDiscountPercentage.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 10, s.PointsPerReferral)
}

func TestReferralSettingsUsesDefaultsWhenUnset(t *testing.T) {
	store := newMockConfigurationStore()
	svc := NewSettingsService(store, nil, DefaultReferralSettings("10", 10), time.Minute, nil, nil)

	s, err := svc.Referral(context.Background())
	require.NoError(t, err)
	assert.True(t, s.ReferredDiscountPercentage.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 10, s.PointsPerReferral)
}

func TestReferralSettingsOverridesAndIgnoresMalformedRows(t *testing.T) {
	store := newMockConfigurationStore(
		models.Configuration{Key: models.ConfigReferralDiscountPercentage, Value: "15"},
		models.Configuration{Key: models.ConfigReferralPointsPerReferral, Value: "lots"},
	)
	cacheSvc := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewSettingsService(store, cacheSvc, DefaultReferralSettings("10", 10), time.Minute, nil, nil)

	s, err := svc.Referral(context.Background())
	require.NoError(t, err)
	assert.True(t, s.ReferredDiscountPercentage.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 10, s.PointsPerReferral)

	_, err = svc.Referral(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)
}

func TestReferralSettingsStoreFailure(t *testing.T) {
	store := newMockConfigurationStore()
	store.listErr = errors.New("down")
	svc := NewSettingsService(store, nil, DefaultReferralSettings("10", 10), time.Minute, nil, nil)

	_, err := svc.Referral(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrDatabaseUnavailable)
}

func TestUpdateReferralSettings(t *testing.T) {
	store := newMockConfigurationStore()
	cacheSvc := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewSettingsService(store, cacheSvc, DefaultReferralSettings("10", 10), time.Minute, nil, nil)
	ctx := context.Background()

	_, err := svc.Referral(ctx)
	require.NoError(t, err)

	updated, err := svc.UpdateReferral(ctx, UpdateReferralSettingsRequest{ReferredDiscountPercentage: "20", PointsPerReferral: 25}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 25, updated.PointsPerReferral)
	require.NotNil(t, store.rows[models.ConfigReferralPointsPerReferral].UpdatedBy)
	assert.Equal(t, "admin-1", *store.rows[models.ConfigReferralPointsPerReferral].UpdatedBy)

	s, err := svc.Referral(ctx)
	require.NoError(t, err)
	assert.True(t, s.ReferredDiscountPercentage.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 25, s.PointsPerReferral)
}

func TestUpdateReferralSettingsValidation(t *testing.T) {
	svc := NewSettingsService(newMockConfigurationStore(), nil, DefaultReferralSettings("10", 10), time.Minute, nil, nil)

	_, err := svc.UpdateReferral(context.Background(), UpdateReferralSettingsRequest{ReferredDiscountPercentage: "120", PointsPerReferral: 1}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.UpdateReferral(context.Background(), UpdateReferralSettingsRequest{ReferredDiscountPercentage: "", PointsPerReferral: 1}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
