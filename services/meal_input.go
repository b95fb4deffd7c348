package services

import (
	"encoding/json"
	"strings"
	"time"

	"dietlog/models"
)

// Optional marks whether a JSON key was present in a request body. Null is
// recorded separately so a field can be cleared explicitly.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MealInput is the payload accepted on create. Ownership is never part of it.
type MealInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	OccurredAt  *string `json:"occurred_at"`
	InDiet      *bool   `json:"in_diet"`
}

// MealPatch carries only the fields a client chose to send on update.
type MealPatch struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	OccurredAt  Optional[string] `json:"occurred_at"`
	InDiet      Optional[bool]   `json:"in_diet"`
}

// MealChanges is a validated column set; nil pointers leave a column untouched.
type MealChanges struct {
	Name           *string
	SetDescription bool
	Description    *string
	OccurredAt     *time.Time
	InDiet         *bool
}

func (c MealChanges) ApplyTo(m *models.Meal) {
	if c.Name != nil {
		m.Name = *c.Name
	}
	if c.SetDescription {
		m.Description = c.Description
	}
	if c.OccurredAt != nil {
		m.OccurredAt = *c.OccurredAt
	}
	if c.InDiet != nil {
		m.InDiet = *c.InDiet
	}
}

func (in MealInput) toMeal(owner string, now time.Time) (*models.Meal, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationErr("name is required")
	}
	if in.InDiet == nil {
		return nil, validationErr("in_diet is required")
	}
	occurredAt := normalizeTime(now)
	if in.OccurredAt != nil {
		t, err := parseOccurredAt(*in.OccurredAt)
		if err != nil {
			return nil, err
		}
		occurredAt = t
	}
	return &models.Meal{
		OwnerSession: owner,
		Name:         name,
		Description:  in.Description,
		InDiet:       *in.InDiet,
		OccurredAt:   occurredAt,
	}, nil
}

// Changes validates every present field of the patch.
func (p MealPatch) Changes() (MealChanges, error) {
	var c MealChanges
	if p.Name.Set {
		name := strings.TrimSpace(p.Name.Value)
		if p.Name.Null || name == "" {
			return MealChanges{}, validationErr("name must not be empty")
		}
		c.Name = &name
	}
	if p.Description.Set {
		c.SetDescription = true
		if !p.Description.Null {
			desc := p.Description.Value
			c.Description = &desc
		}
	}
	if p.OccurredAt.Set {
		if p.OccurredAt.Null {
			return MealChanges{}, validationErr("occurred_at must be a valid timestamp")
		}
		t, err := parseOccurredAt(p.OccurredAt.Value)
		if err != nil {
			return MealChanges{}, err
		}
		c.OccurredAt = &t
	}
	if p.InDiet.Set {
		if p.InDiet.Null {
			return MealChanges{}, validationErr("in_diet must be true or false")
		}
		inDiet := p.InDiet.Value
		c.InDiet = &inDiet
	}
	return c, nil
}

var occurredAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseOccurredAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return normalizeTime(t), nil
		}
	}
	return time.Time{}, validationErr("occurred_at %q is not a valid timestamp", raw)
}

// Stored timestamps are UTC at microsecond precision, which PostgreSQL keeps exactly.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
