package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title     string    `gorm:"column:title;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *Course) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type ExamSchedule struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Title     string     `gorm:"column:title;not null"`
	StartsAt  *time.Time `gorm:"column:starts_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (e *ExamSchedule) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
