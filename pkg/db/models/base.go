package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model. Tests use it for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Course{},
		&ExamSchedule{},
		&Product{},
		&ProductPrice{},
		&ProductCourseLink{},
		&ProductExamLink{},
		&Cart{},
		&CartItem{},
		&DocumentSequence{},
		&SalesOrderHeader{},
		&SalesOrderItem{},
		&Invoice{},
		&CourseEntitlement{},
		&ExamScheduleEntitlement{},
		&OutboxEvent{},
	}
}
