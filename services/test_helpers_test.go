package services

import (
	"context"
	"testing"
	"time"

	"dietlog/config"
	"dietlog/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*MealService, *MealStore) {
	t.Helper()
	store := NewMealStore(newTestDB(t))
	return NewMealService(store, nil), store
}

func ptr[T any](v T) *T { return &v }

func at(hour, minute int) time.Time {
	return time.Date(2023, 8, 15, hour, minute, 0, 0, time.UTC)
}

func seedMeal(t *testing.T, store *MealStore, owner, name string, inDiet bool, occurredAt time.Time) models.Meal {
	t.Helper()
	meal := models.Meal{OwnerSession: owner, Name: name, InDiet: inDiet, OccurredAt: occurredAt}
	require.NoError(t, store.Insert(context.Background(), &meal))
	return meal
}
