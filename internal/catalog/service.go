// Package catalog creates and edits products, their price history and their
// course and exam links, reconciling entitlements when links change.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/entitlements"
	"github.com/edutrack/commerce-backend/internal/pricing"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockSetter interface {
	Set(ctx context.Context, tx *gorm.DB, productID uuid.UUID, stock int) error
}

type linkReconciler interface {
	ApplyLinkChanges(ctx context.Context, tx *gorm.DB, productID uuid.UUID, changes entitlements.LinkChanges) (entitlements.Outcome, error)
}

type ServiceParams struct {
	Logger       *logger.Logger
	Tx           txRunner
	Products     *Repository
	Prices       *pricing.Repository
	Stock        stockSetter
	Entitlements linkReconciler
	Outbox       outbox.Emitter
}

type Service struct {
	logg         *logger.Logger
	tx           txRunner
	products     *Repository
	prices       *pricing.Repository
	stock        stockSetter
	entitlements linkReconciler
	outbox       outbox.Emitter
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case p.Prices == nil:
		return nil, fmt.Errorf("price repository required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case p.Entitlements == nil:
		return nil, fmt.Errorf("entitlement reconciler required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		logg:         logg,
		tx:           p.Tx,
		products:     p.Products,
		prices:       p.Prices,
		stock:        p.Stock,
		entitlements: p.Entitlements,
		outbox:       p.Outbox,
	}, nil
}

// Get returns the admin view of a product.
func (s *Service) Get(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return s.detail(ctx, s.products, s.prices, *product)
}

// Create inserts a product with its links and price history.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in ProductInput) (*EditResult, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	var out *EditResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		prices := s.prices.WithTx(tx)
		if err := s.ensureTargetsExist(ctx, products, in); err != nil {
			return err
		}

		product := &models.Product{Name: in.Name, Category: in.Category, Level: in.Level, Description: in.Description}
		if err := products.Create(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert product")
		}
		if err := s.stock.Set(ctx, tx, product.ID, in.Stock); err != nil {
			return err
		}
		if err := products.ReplaceCourseLinks(ctx, product.ID, in.CourseIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert course links")
		}
		if err := products.ReplaceExamLinks(ctx, product.ID, in.ExamScheduleIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert exam links")
		}
		if err := prices.Replace(ctx, product.ID, priceRows(in.Prices)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert price history")
		}

		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCatalogProductUpdated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
			Actor:         actorRef(actorID),
			Data: outbox.ProductUpdatedEvent{
				ProductID:       product.ID,
				Created:         true,
				Stock:           in.Stock,
				CoursesAdded:    in.CourseIDs,
				ExamsAdded:      in.ExamScheduleIDs,
				PriceRowsStored: len(in.Prices),
			},
		})
		if err != nil {
			return err
		}

		stored, err := products.FindByID(ctx, product.ID)
		if err != nil {
			return err
		}
		dto, err := s.detail(ctx, products, prices, *stored)
		if err != nil {
			return err
		}
		out = &EditResult{Product: dto}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", out.Product.ID.String()), "product created")
	return out, nil
}

// Update replaces a product's fields, stock, links and price history in one
// transaction and reconciles entitlements for changed links.
func (s *Service) Update(ctx context.Context, actorID, productID uuid.UUID, in ProductInput) (*EditResult, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	var out *EditResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		prices := s.prices.WithTx(tx)

		if _, err := products.LockByID(ctx, productID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}
		if err := s.ensureTargetsExist(ctx, products, in); err != nil {
			return err
		}

		if err := products.UpdateFields(ctx, productID, map[string]any{
			"name":        in.Name,
			"category":    in.Category,
			"level":       in.Level,
			"description": in.Description,
			"updated_at":  time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
		}
		if err := s.stock.Set(ctx, tx, productID, in.Stock); err != nil {
			return err
		}

		changes, err := s.replaceLinks(ctx, products, productID, in)
		if err != nil {
			return err
		}
		if err := prices.Replace(ctx, productID, priceRows(in.Prices)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace price history")
		}

		outcome, err := s.entitlements.ApplyLinkChanges(ctx, tx, productID, changes)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile entitlements")
		}

		if err := s.emitUpdate(ctx, tx, actorID, productID, in, changes, outcome); err != nil {
			return err
		}

		stored, err := products.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		dto, err := s.detail(ctx, products, prices, *stored)
		if err != nil {
			return err
		}
		out = &EditResult{Product: dto, EntitlementsGranted: outcome.Granted, EntitlementsRevoked: outcome.Revoked}

		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"product_id":      productID.String(),
			"courses_added":   len(changes.CoursesAdded),
			"courses_removed": len(changes.CoursesRemoved),
			"exams_added":     len(changes.ExamsAdded),
			"exams_removed":   len(changes.ExamsRemoved),
			"granted":         outcome.Granted,
			"revoked":         outcome.Revoked,
		}), "product links reconciled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) replaceLinks(ctx context.Context, products *Repository, productID uuid.UUID, in ProductInput) (entitlements.LinkChanges, error) {
	currentCourses, err := products.CourseIDs(ctx, productID)
	if err != nil {
		return entitlements.LinkChanges{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load course links")
	}
	currentExams, err := products.ExamScheduleIDs(ctx, productID)
	if err != nil {
		return entitlements.LinkChanges{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load exam links")
	}

	var changes entitlements.LinkChanges
	changes.CoursesAdded, changes.CoursesRemoved = diffIDs(currentCourses, in.CourseIDs)
	changes.ExamsAdded, changes.ExamsRemoved = diffIDs(currentExams, in.ExamScheduleIDs)

	if err := products.ReplaceCourseLinks(ctx, productID, in.CourseIDs); err != nil {
		return entitlements.LinkChanges{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace course links")
	}
	if err := products.ReplaceExamLinks(ctx, productID, in.ExamScheduleIDs); err != nil {
		return entitlements.LinkChanges{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace exam links")
	}
	return changes, nil
}

func (s *Service) emitUpdate(ctx context.Context, tx *gorm.DB, actorID, productID uuid.UUID, in ProductInput, changes entitlements.LinkChanges, outcome entitlements.Outcome) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCatalogProductUpdated,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Actor:         actorRef(actorID),
		Data: outbox.ProductUpdatedEvent{
			ProductID:       productID,
			Stock:           in.Stock,
			CoursesAdded:    changes.CoursesAdded,
			CoursesRemoved:  changes.CoursesRemoved,
			ExamsAdded:      changes.ExamsAdded,
			ExamsRemoved:    changes.ExamsRemoved,
			PriceRowsStored: len(in.Prices),
		},
	})
	if err != nil {
		return err
	}
	if outcome.Granted == 0 && outcome.Revoked == 0 {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEntitlementsReconciled,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Actor:         actorRef(actorID),
		Data: outbox.EntitlementsReconciledEvent{
			ProductID: productID,
			Granted:   outcome.Granted,
			Revoked:   outcome.Revoked,
		},
	})
}

func (s *Service) ensureTargetsExist(ctx context.Context, products *Repository, in ProductInput) error {
	missingCourses, err := products.MissingCourses(ctx, in.CourseIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check courses")
	}
	missingExams, err := products.MissingExamSchedules(ctx, in.ExamScheduleIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check exam schedules")
	}
	if len(missingCourses) > 0 || len(missingExams) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown course or exam schedule ids").
			WithDetails(map[string]any{"course_ids": missingCourses, "exam_schedule_ids": missingExams})
	}
	return nil
}

func (s *Service) detail(ctx context.Context, products *Repository, prices *pricing.Repository, product models.Product) (*ProductDTO, error) {
	courseIDs, err := products.CourseIDs(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load course links")
	}
	examIDs, err := products.ExamScheduleIDs(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load exam links")
	}
	history, err := prices.ListByProduct(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load price history")
	}
	return newProductDTO(product, courseIDs, examIDs, history), nil
}

func actorRef(actorID uuid.UUID) *outbox.ActorRef {
	if actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actorID, Role: "admin"}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
