package services

import (
	"context"
	"sort"

	"dietlog/models"
)

type SummaryService struct{ store *MealStore }

func NewSummaryService(store *MealStore) *SummaryService { return &SummaryService{store: store} }

type Summary struct {
	TotalMeals       int `json:"total_meals"`
	InDietCount      int `json:"in_diet_count"`
	OutDietCount     int `json:"out_diet_count"`
	BestInDietStreak int `json:"best_in_diet_streak"`
}

func (s *SummaryService) Summarize(ctx context.Context, callerSession string) (Summary, error) {
	meals, err := s.store.ListByOwnerRecentFirst(ctx, callerSession)
	if err != nil {
		return Summary{}, err
	}
	return ComputeSummary(meals), nil
}

// SortRecentFirst orders meals by occurred_at descending, ties broken by id
// descending, matching ListByOwnerRecentFirst.
func SortRecentFirst(meals []models.Meal) {
	sort.SliceStable(meals, func(i, j int) bool {
		a, b := meals[i], meals[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.ID > b.ID
	})
}

// ComputeSummary walks the meals from most recent to oldest. A streak only
// counts once an out-of-diet meal closes it; the oldest run, if never closed,
// is not compared against the best.
func ComputeSummary(meals []models.Meal) Summary {
	ordered := make([]models.Meal, len(meals))
	copy(ordered, meals)
	SortRecentFirst(ordered)

	out := Summary{TotalMeals: len(ordered)}
	current := 0
	for _, m := range ordered {
		if m.InDiet {
			out.InDietCount++
			current++
			continue
		}
		out.OutDietCount++
		if current > out.BestInDietStreak {
			out.BestInDietStreak = current
		}
		current = 0
	}
	return out
}
