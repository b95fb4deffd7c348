// services/meal_service.go
package services

import (
	"context"
	"time"

	"dietlog/models"
)

type MealService struct {
	store  *MealStore
	events *RealtimeHub
	now    func() time.Time
}

// events may be nil when nobody listens for meal changes.
func NewMealService(store *MealStore, events *RealtimeHub) *MealService {
	return &MealService{store: store, events: events, now: time.Now}
}

// Create always succeeds for a valid payload; a caller without a session gets a
// freshly minted one which it must hand back to the client.
func (s *MealService) Create(
	ctx context.Context,
	callerSession string,
	in MealInput,
) (meal *models.Meal, session string, isNew bool, err error) {
	session, isNew = EnsureSession(callerSession)

	meal, err = in.toMeal(session, s.now())
	if err != nil {
		return nil, "", false, err
	}
	if err := s.store.Insert(ctx, meal); err != nil {
		return nil, "", false, err
	}

	s.publish(session, "meal.created", meal)
	return meal, session, isNew, nil
}

// Update merges the present patch fields into the caller's meal.
// Errors come in the order NotFound, NotOwner, ValidationError.
func (s *MealService) Update(
	ctx context.Context,
	id, callerSession string,
	patch MealPatch,
) (*models.Meal, error) {
	changes, invalid := patch.Changes()

	meal, err := s.store.UpdateOwned(ctx, id, callerSession, func(m *models.Meal) error {
		if invalid != nil {
			return invalid
		}
		changes.ApplyTo(m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(callerSession, "meal.updated", meal)
	return meal, nil
}

func (s *MealService) Delete(ctx context.Context, id, callerSession string) error {
	if err := s.store.DeleteOwned(ctx, id, callerSession); err != nil {
		return err
	}
	s.publish(callerSession, "meal.deleted", map[string]string{"id": id})
	return nil
}

func (s *MealService) Get(ctx context.Context, id, callerSession string) (*models.Meal, error) {
	meal, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(meal, callerSession); err != nil {
		return nil, err
	}
	return meal, nil
}

// List returns every meal the caller owns, most recent first.
func (s *MealService) List(ctx context.Context, callerSession string) ([]models.Meal, error) {
	return s.store.ListByOwnerRecentFirst(ctx, callerSession)
}

func (s *MealService) publish(session, kind string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(session, MealEvent{Kind: kind, Data: payload})
}
