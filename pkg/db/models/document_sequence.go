package models

import "time"

// DocumentSequence is the counter row for one (prefix, branch, period) partition.
type DocumentSequence struct {
	Prefix     string    `gorm:"column:prefix;primaryKey"`
	BranchCode string    `gorm:"column:branch_code;primaryKey"`
	Period     string    `gorm:"column:period;primaryKey"`
	LastValue  int64     `gorm:"column:last_value;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
