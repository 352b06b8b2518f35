package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutrack/commerce-backend/pkg/db/models"
)

// Repository persists products and their course and exam links.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockByID reads the product FOR UPDATE, serializing edits of one product.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateFields writes descriptive columns. Stock is left to the ledger.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) CourseIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProductCourseLink{}).
		Where("product_id = ?", productID).
		Order("course_id").
		Pluck("course_id", &ids).Error
	return ids, err
}

func (r *Repository) ExamScheduleIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProductExamLink{}).
		Where("product_id = ?", productID).
		Order("exam_schedule_id").
		Pluck("exam_schedule_id", &ids).Error
	return ids, err
}

// ReplaceCourseLinks makes the product's course links equal to ids.
func (r *Repository) ReplaceCourseLinks(ctx context.Context, productID uuid.UUID, ids []uuid.UUID) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductCourseLink{}).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	rows := make([]models.ProductCourseLink, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.ProductCourseLink{ProductID: productID, CourseID: id})
	}
	return tx.Create(&rows).Error
}

// ReplaceExamLinks makes the product's exam schedule links equal to ids.
func (r *Repository) ReplaceExamLinks(ctx context.Context, productID uuid.UUID, ids []uuid.UUID) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductExamLink{}).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	rows := make([]models.ProductExamLink, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.ProductExamLink{ProductID: productID, ExamScheduleID: id})
	}
	return tx.Create(&rows).Error
}

// MissingCourses returns the ids that name no course.
func (r *Repository) MissingCourses(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return r.missing(ctx, &models.Course{}, ids)
}

// MissingExamSchedules returns the ids that name no exam schedule.
func (r *Repository) MissingExamSchedules(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return r.missing(ctx, &models.ExamSchedule{}, ids)
}

func (r *Repository) missing(ctx context.Context, model any, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uuid.UUID
	if err := r.db.WithContext(ctx).Model(model).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	present := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}
