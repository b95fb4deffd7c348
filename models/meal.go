package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// One logged meal. OwnerSession is bound at creation and never changes.
type Meal struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerSession string    `gorm:"type:varchar(64);not null;index" json:"owner_session"`
	Name         string    `gorm:"type:text;not null" json:"name"`
	Description  *string   `gorm:"type:text" json:"description"`
	InDiet       bool      `gorm:"not null" json:"in_diet"`
	OccurredAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"occurred_at"`
}

func (Meal) TableName() string {
	return "meals"
}

func (m *Meal) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return
}
