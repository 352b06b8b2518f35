// Package entitlements keeps course and exam access equal to what the user's
// successful purchases currently justify.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
)

// target describes one entitlement family. Table and column names come only
// from the two values below and are never built from input.
type target struct {
	name       string
	table      string
	column     string
	linkTable  string
	linkColumn string
	model      any
	build      func(pairs []grant, now time.Time) any
}

type grant struct {
	userID   uuid.UUID
	targetID uuid.UUID
}

var (
	courses = target{
		name:       "course",
		table:      "course_entitlements",
		column:     "course_id",
		linkTable:  "product_course_links",
		linkColumn: "course_id",
		model:      &models.CourseEntitlement{},
		build: func(pairs []grant, now time.Time) any {
			rows := make([]models.CourseEntitlement, 0, len(pairs))
			for _, p := range pairs {
				rows = append(rows, models.CourseEntitlement{UserID: p.userID, CourseID: p.targetID, GrantedAt: now})
			}
			return &rows
		},
	}
	exams = target{
		name:       "exam_schedule",
		table:      "exam_schedule_entitlements",
		column:     "exam_schedule_id",
		linkTable:  "product_exam_links",
		linkColumn: "exam_schedule_id",
		model:      &models.ExamScheduleEntitlement{},
		build: func(pairs []grant, now time.Time) any {
			rows := make([]models.ExamScheduleEntitlement, 0, len(pairs))
			for _, p := range pairs {
				rows = append(rows, models.ExamScheduleEntitlement{UserID: p.userID, ExamScheduleID: p.targetID, GrantedAt: now})
			}
			return &rows
		},
	}
)

// Granted counts the entitlement rows written by a settlement grant.
type Granted struct {
	Courses   int
	ExamSlots int
}

// LinkChanges is the diff of one product's course and exam links.
type LinkChanges struct {
	CoursesAdded   []uuid.UUID
	CoursesRemoved []uuid.UUID
	ExamsAdded     []uuid.UUID
	ExamsRemoved   []uuid.UUID
}

func (c LinkChanges) Empty() bool {
	return len(c.CoursesAdded)+len(c.CoursesRemoved)+len(c.ExamsAdded)+len(c.ExamsRemoved) == 0
}

// Outcome counts grants and revokes caused by a link change.
type Outcome struct {
	Granted int
	Revoked int
}

type Reconciler struct {
	now func() time.Time
}

func NewReconciler() *Reconciler {
	return &Reconciler{now: func() time.Time { return time.Now().UTC() }}
}

// GrantForProducts grants the user permanent access to every course and exam
// schedule linked to the products. Existing rows have their expiry cleared.
func (r *Reconciler) GrantForProducts(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) (Granted, error) {
	if tx == nil {
		return Granted{}, errors.New("transaction required")
	}
	if len(productIDs) == 0 {
		return Granted{}, nil
	}
	now := r.now()
	var out Granted
	for _, t := range []target{courses, exams} {
		ids, err := linkedTargets(ctx, tx, t, productIDs)
		if err != nil {
			return Granted{}, err
		}
		pairs := make([]grant, 0, len(ids))
		for _, id := range ids {
			pairs = append(pairs, grant{userID: userID, targetID: id})
		}
		if err := upsert(ctx, tx, t, pairs, now); err != nil {
			return Granted{}, err
		}
		if t.name == courses.name {
			out.Courses = len(pairs)
		} else {
			out.ExamSlots = len(pairs)
		}
	}
	return out, nil
}

// ApplyLinkChanges reconciles entitlements after a product's links changed.
// An added link is granted to every user with a successful order containing
// the product. A removed link is revoked from those users unless another
// successful purchase of a different product still links them to the same
// course or exam schedule. Callers serialize edits per product.
func (r *Reconciler) ApplyLinkChanges(ctx context.Context, tx *gorm.DB, productID uuid.UUID, changes LinkChanges) (Outcome, error) {
	if tx == nil {
		return Outcome{}, errors.New("transaction required")
	}
	if changes.Empty() {
		return Outcome{}, nil
	}
	buyers, err := purchasers(ctx, tx, productID)
	if err != nil {
		return Outcome{}, err
	}
	if len(buyers) == 0 {
		return Outcome{}, nil
	}

	now := r.now()
	var out Outcome
	steps := []struct {
		t       target
		added   []uuid.UUID
		removed []uuid.UUID
	}{
		{courses, changes.CoursesAdded, changes.CoursesRemoved},
		{exams, changes.ExamsAdded, changes.ExamsRemoved},
	}
	for _, step := range steps {
		pairs := make([]grant, 0, len(buyers)*len(step.added))
		for _, targetID := range step.added {
			for _, userID := range buyers {
				pairs = append(pairs, grant{userID: userID, targetID: targetID})
			}
		}
		if err := upsert(ctx, tx, step.t, pairs, now); err != nil {
			return Outcome{}, err
		}
		out.Granted += len(pairs)

		for _, targetID := range step.removed {
			revoked, err := revokeUnjustified(ctx, tx, step.t, productID, targetID, buyers)
			if err != nil {
				return Outcome{}, err
			}
			out.Revoked += int(revoked)
		}
	}
	return out, nil
}

func linkedTargets(ctx context.Context, tx *gorm.DB, t target, productIDs []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.WithContext(ctx).
		Table(t.linkTable).
		Distinct(t.linkColumn).
		Where("product_id IN ?", productIDs).
		Order(t.linkColumn).
		Pluck(t.linkColumn, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load %s links: %w", t.name, err)
	}
	return ids, nil
}

func purchasers(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.WithContext(ctx).
		Table("sales_order_headers AS h").
		Joins("JOIN sales_order_items AS i ON i.order_id = h.id").
		Where("h.payment_status = ? AND i.product_id = ?", enums.PaymentStatusSuccess, productID).
		Distinct("h.user_id").
		Order("h.user_id").
		Pluck("h.user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load purchasers: %w", err)
	}
	return ids, nil
}

func upsert(ctx context.Context, tx *gorm.DB, t target, pairs []grant, now time.Time) error {
	if len(pairs) == 0 {
		return nil
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: t.column}},
			DoUpdates: clause.Assignments(map[string]any{"expires_at": nil, "updated_at": now}),
		}).
		Create(t.build(pairs, now)).Error
	if err != nil {
		return fmt.Errorf("grant %s entitlements: %w", t.name, err)
	}
	return nil
}

// revokeUnjustified deletes the entitlement of each candidate unless a
// successful order for another product linked to targetID still justifies it.
func revokeUnjustified(ctx context.Context, tx *gorm.DB, t target, productID, targetID uuid.UUID, candidates []uuid.UUID) (int64, error) {
	unjustified := fmt.Sprintf(`NOT EXISTS (
		SELECT 1 FROM sales_order_headers AS h
		JOIN sales_order_items AS i ON i.order_id = h.id
		JOIN %[1]s AS l ON l.product_id = i.product_id
		WHERE h.user_id = %[2]s.user_id
		  AND h.payment_status = ?
		  AND l.%[3]s = ?
		  AND i.product_id <> ?
	)`, t.linkTable, t.table, t.linkColumn)

	res := tx.WithContext(ctx).
		Where(t.column+" = ?", targetID).
		Where("user_id IN ?", candidates).
		Where(unjustified, enums.PaymentStatusSuccess, targetID, productID).
		Delete(t.model)
	if res.Error != nil {
		return 0, fmt.Errorf("revoke %s entitlements: %w", t.name, res.Error)
	}
	return res.RowsAffected, nil
}
