package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CourseEntitlement grants a user access to a course. A nil ExpiresAt is permanent.
type CourseEntitlement struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_course_entitlements_user_course,priority:1"`
	CourseID  uuid.UUID  `gorm:"column:course_id;type:uuid;not null;uniqueIndex:ux_course_entitlements_user_course,priority:2"`
	GrantedAt time.Time  `gorm:"column:granted_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *CourseEntitlement) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

type ExamScheduleEntitlement struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_exam_entitlements_user_exam,priority:1"`
	ExamScheduleID uuid.UUID  `gorm:"column:exam_schedule_id;type:uuid;not null;uniqueIndex:ux_exam_entitlements_user_exam,priority:2"`
	GrantedAt      time.Time  `gorm:"column:granted_at;not null"`
	ExpiresAt      *time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *ExamScheduleEntitlement) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
