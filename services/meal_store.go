package services

import (
	"context"
	"errors"

	"dietlog/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MealStore is the only writer of the meals table.
type MealStore struct{ db *gorm.DB }

func NewMealStore(db *gorm.DB) *MealStore { return &MealStore{db: db} }

func (s *MealStore) Insert(ctx context.Context, meal *models.Meal) error {
	if err := s.db.WithContext(ctx).Create(meal).Error; err != nil {
		return storageErr("insert meal", err)
	}
	return nil
}

func (s *MealStore) GetByID(ctx context.Context, id string) (*models.Meal, error) {
	var meal models.Meal
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&meal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get meal", err)
	}
	return &meal, nil
}

// UpdateByID applies changes without an ownership check.
func (s *MealStore) UpdateByID(ctx context.Context, id string, changes MealChanges) (*models.Meal, error) {
	return s.update(ctx, id, func(m *models.Meal) error {
		changes.ApplyTo(m)
		return nil
	})
}

// UpdateOwned locks the row, verifies owner and lets mutate change it, all in one
// transaction. Nothing is written when mutate returns an error.
func (s *MealStore) UpdateOwned(
	ctx context.Context,
	id, owner string,
	mutate func(*models.Meal) error,
) (*models.Meal, error) {
	return s.update(ctx, id, func(m *models.Meal) error {
		if err := Authorize(m, owner); err != nil {
			return err
		}
		return mutate(m)
	})
}

func (s *MealStore) update(ctx context.Context, id string, mutate func(*models.Meal) error) (*models.Meal, error) {
	var updated models.Meal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meal models.Meal
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&meal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := mutate(&meal); err != nil {
			return err
		}

		// id and owner_session are never part of the update set
		if err := tx.Model(&models.Meal{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"name":        meal.Name,
				"description": meal.Description,
				"occurred_at": meal.OccurredAt,
				"in_diet":     meal.InDiet,
			}).Error; err != nil {
			return err
		}
		updated = meal
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, storageErr("update meal", err)
	}
	return &updated, nil
}

func (s *MealStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Meal{})
	if res.Error != nil {
		return false, storageErr("delete meal", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteOwned removes the meal with a single conditional delete. When nothing
// matched, a follow-up read tells NotFound from NotOwner.
func (s *MealStore) DeleteOwned(ctx context.Context, id, owner string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_session = ?", id, owner).
		Delete(&models.Meal{})
	if res.Error != nil {
		return storageErr("delete meal", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrNotOwner
}

// ListByOwner returns the owner's meals in no particular order.
func (s *MealStore) ListByOwner(ctx context.Context, owner string) ([]models.Meal, error) {
	meals := []models.Meal{}
	if err := s.db.WithContext(ctx).
		Where("owner_session = ?", owner).
		Find(&meals).Error; err != nil {
		return nil, storageErr("list meals", err)
	}
	return meals, nil
}

func (s *MealStore) ListByOwnerRecentFirst(ctx context.Context, owner string) ([]models.Meal, error) {
	meals := []models.Meal{}
	if err := s.db.WithContext(ctx).
		Where("owner_session = ?", owner).
		Order("occurred_at DESC").
		Order("id DESC").
		Find(&meals).Error; err != nil {
		return nil, storageErr("list meals", err)
	}
	return meals, nil
}

func isDomainErr(err error) bool {
	var se *StorageError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrValidation) ||
		errors.As(err, &se)
}
