package services

import "dietlog/models"

// Authorize fails with ErrNotOwner unless callerSession owns the meal.
func Authorize(meal *models.Meal, callerSession string) error {
	if meal == nil || callerSession == "" || meal.OwnerSession != callerSession {
		return ErrNotOwner
	}
	return nil
}
