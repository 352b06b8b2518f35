package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/entitlements"
	"github.com/edutrack/commerce-backend/internal/inventory"
	"github.com/edutrack/commerce-backend/internal/pricing"
	"github.com/edutrack/commerce-backend/pkg/db"
	"github.com/edutrack/commerce-backend/pkg/db/dbtest"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/outbox"
)

func newCatalogService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	client := dbtest.NewSQLite(t)
	return buildCatalogService(t, client), client.DB()
}

func buildCatalogService(t *testing.T, client *db.Client, overrides ...func(*ServiceParams)) *Service {
	t.Helper()
	conn := client.DB()
	params := ServiceParams{
		Logger:       logger.Nop(),
		Tx:           client,
		Products:     NewRepository(conn),
		Prices:       pricing.NewRepository(conn),
		Stock:        inventory.NewLedger(),
		Entitlements: entitlements.NewReconciler(),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	}
	for _, override := range overrides {
		override(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

type failingReconciler struct{}

func (failingReconciler) ApplyLinkChanges(context.Context, *gorm.DB, uuid.UUID, entitlements.LinkChanges) (entitlements.Outcome, error) {
	return entitlements.Outcome{}, errors.New("entitlement store unavailable")
}

// failingEmitter writes through to the real outbox except for one event type.
type failingEmitter struct {
	next   outbox.Emitter
	failOn enums.OutboxEventType
}

func (e failingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if event.EventType == e.failOn {
		return errors.New("outbox insert failed")
	}
	return e.next.Emit(ctx, tx, event)
}

func openPrice(amount int64) PriceInput {
	return PriceInput{
		Price:          decimal.NewFromInt(amount),
		EffectiveStart: time.Now().UTC().Add(-time.Hour).Truncate(time.Second),
	}
}

func TestCreateProduct(t *testing.T) {
	svc, conn := newCatalogService(t)
	course := dbtest.CreateCourse(t, conn, "Penalaran Umum")
	exam := dbtest.CreateExamSchedule(t, conn, "Tryout Nasional 1")
	admin := uuid.New()

	res, err := svc.Create(context.Background(), admin, ProductInput{
		Name:            "  UTBK Intensive ",
		Category:        "bundle",
		Stock:           40,
		CourseIDs:       []uuid.UUID{course.ID, course.ID},
		ExamScheduleIDs: []uuid.UUID{exam.ID},
		Prices:          []PriceInput{openPrice(250000)},
	})
	require.NoError(t, err)
	assert.Equal(t, "UTBK Intensive", res.Product.Name)
	assert.Equal(t, 40, res.Product.Stock)
	assert.Equal(t, []uuid.UUID{course.ID}, res.Product.CourseIDs)
	assert.Equal(t, []uuid.UUID{exam.ID}, res.Product.ExamScheduleIDs)
	require.Len(t, res.Product.Prices, 1)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventCatalogProductUpdated, events[0].EventType)
}

func TestCreateProductRejectsUnknownCourse(t *testing.T) {
	svc, conn := newCatalogService(t)

	_, err := svc.Create(context.Background(), uuid.New(), ProductInput{Name: "Ghost", CourseIDs: []uuid.UUID{uuid.New()}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, conn.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateProductReconcilesLinks(t *testing.T) {
	svc, conn := newCatalogService(t)
	ctx := context.Background()
	keep := dbtest.CreateCourse(t, conn, "Penalaran Umum")
	dropped := dbtest.CreateCourse(t, conn, "Literasi Bahasa")
	added := dbtest.CreateExamSchedule(t, conn, "Tryout Nasional 2")

	created, err := svc.Create(ctx, uuid.New(), ProductInput{
		Name:      "UTBK Intensive",
		Stock:     10,
		CourseIDs: []uuid.UUID{keep.ID, dropped.ID},
		Prices:    []PriceInput{openPrice(250000)},
	})
	require.NoError(t, err)
	productID := created.Product.ID

	buyer := dbtest.CreateUser(t, conn)
	dbtest.CreateOrder(t, conn, buyer.ID, enums.PaymentStatusSuccess, dbtest.OrderLine{ProductID: productID, Quantity: 1, UnitPrice: 250000})
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := entitlements.NewReconciler().GrantForProducts(ctx, tx, buyer.ID, []uuid.UUID{productID})
		return err
	}))

	res, err := svc.Update(ctx, uuid.New(), productID, ProductInput{
		Name:            "UTBK Intensive 2027",
		Stock:           7,
		CourseIDs:       []uuid.UUID{keep.ID},
		ExamScheduleIDs: []uuid.UUID{added.ID},
		Prices:          []PriceInput{openPrice(275000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntitlementsGranted)
	assert.Equal(t, 1, res.EntitlementsRevoked)
	assert.Equal(t, "UTBK Intensive 2027", res.Product.Name)
	assert.Equal(t, 7, res.Product.Stock)
	require.Len(t, res.Product.Prices, 1)
	assert.True(t, decimal.NewFromInt(275000).Equal(res.Product.Prices[0].Price))

	var courses []models.CourseEntitlement
	require.NoError(t, conn.Where("user_id = ?", buyer.ID).Find(&courses).Error)
	require.Len(t, courses, 1)
	assert.Equal(t, keep.ID, courses[0].CourseID)

	var exams int64
	require.NoError(t, conn.Model(&models.ExamScheduleEntitlement{}).Where("user_id = ? AND exam_schedule_id = ?", buyer.ID, added.ID).Count(&exams).Error)
	assert.EqualValues(t, 1, exams)

	var reconciled int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventEntitlementsReconciled).Count(&reconciled).Error)
	assert.EqualValues(t, 1, reconciled)
}

func TestUpdateProductNotFound(t *testing.T) {
	svc, _ := newCatalogService(t)
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), ProductInput{Name: "Nothing"})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestValidatePrices(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	end := now.Add(24 * time.Hour)
	later := now.Add(48 * time.Hour)
	promo := decimal.NewFromInt(90)
	badPromo := decimal.NewFromInt(150)

	valid := []PriceInput{
		{Price: decimal.NewFromInt(120), EffectiveStart: end},
		{Price: decimal.NewFromInt(100), PromoPrice: &promo, EffectiveStart: now, EffectiveEnd: &end},
	}
	assert.NoError(t, validatePrices(valid))

	cases := map[string][]PriceInput{
		"zero price":   {{Price: decimal.Zero, EffectiveStart: now}},
		"promo above":  {{Price: decimal.NewFromInt(100), PromoPrice: &badPromo, EffectiveStart: now}},
		"end <= start": {{Price: decimal.NewFromInt(100), EffectiveStart: now, EffectiveEnd: &now}},
		"no start":     {{Price: decimal.NewFromInt(100)}},
		"open overlap": {
			{Price: decimal.NewFromInt(100), EffectiveStart: now},
			{Price: decimal.NewFromInt(120), EffectiveStart: later},
		},
		"window overlap": {
			{Price: decimal.NewFromInt(100), EffectiveStart: now, EffectiveEnd: &later},
			{Price: decimal.NewFromInt(120), EffectiveStart: end},
		},
	}
	for name, prices := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(validatePrices(prices)))
		})
	}
}

func TestDiffIDs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	added, removed := diffIDs([]uuid.UUID{a, b}, []uuid.UUID{b, c})
	assert.Equal(t, []uuid.UUID{c}, added)
	assert.Equal(t, []uuid.UUID{a}, removed)
}

// seedLinkedProduct creates a product linked to one course, with a buyer
// already entitled to it.
func seedLinkedProduct(t *testing.T, svc *Service, conn *gorm.DB) (product *ProductDTO, buyer models.User, kept, added models.Course) {
	t.Helper()
	ctx := context.Background()
	kept = dbtest.CreateCourse(t, conn, "Penalaran Umum")
	added = dbtest.CreateCourse(t, conn, "Literasi Bahasa")

	created, err := svc.Create(ctx, uuid.New(), ProductInput{
		Name:      "UTBK Intensive",
		Stock:     10,
		CourseIDs: []uuid.UUID{kept.ID},
		Prices:    []PriceInput{openPrice(250000)},
	})
	require.NoError(t, err)

	buyer = dbtest.CreateUser(t, conn)
	dbtest.CreateOrder(t, conn, buyer.ID, enums.PaymentStatusSuccess, dbtest.OrderLine{ProductID: created.Product.ID, Quantity: 1, UnitPrice: 250000})
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := entitlements.NewReconciler().GrantForProducts(ctx, tx, buyer.ID, []uuid.UUID{created.Product.ID})
		return err
	}))
	return created.Product, buyer, kept, added
}

func assertProductUnchanged(t *testing.T, svc *Service, conn *gorm.DB, before *ProductDTO, buyer models.User, kept models.Course) {
	t.Helper()
	after, err := svc.Get(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.Stock, after.Stock)
	assert.Equal(t, before.CourseIDs, after.CourseIDs)
	assert.Empty(t, after.ExamScheduleIDs)
	require.Len(t, after.Prices, 1)
	assert.Equal(t, before.Prices[0].ID, after.Prices[0].ID)
	assert.True(t, decimal.NewFromInt(250000).Equal(after.Prices[0].Price))

	var courses []models.CourseEntitlement
	require.NoError(t, conn.Where("user_id = ?", buyer.ID).Find(&courses).Error)
	require.Len(t, courses, 1)
	assert.Equal(t, kept.ID, courses[0].CourseID)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", before.ID).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestUpdateProductRollsBackWhenReconcileFails(t *testing.T) {
	client := dbtest.NewSQLite(t)
	conn := client.DB()
	svc := buildCatalogService(t, client)
	before, buyer, kept, added := seedLinkedProduct(t, svc, conn)

	failing := buildCatalogService(t, client, func(p *ServiceParams) {
		p.Entitlements = failingReconciler{}
	})
	_, err := failing.Update(context.Background(), uuid.New(), before.ID, ProductInput{
		Name:      "UTBK Intensive 2027",
		Stock:     3,
		CourseIDs: []uuid.UUID{added.ID},
		Prices:    []PriceInput{openPrice(275000)},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))

	assertProductUnchanged(t, svc, conn, before, buyer, kept)
}

func TestUpdateProductRollsBackWhenEventFails(t *testing.T) {
	client := dbtest.NewSQLite(t)
	conn := client.DB()
	svc := buildCatalogService(t, client)
	before, buyer, kept, added := seedLinkedProduct(t, svc, conn)

	failing := buildCatalogService(t, client, func(p *ServiceParams) {
		p.Outbox = failingEmitter{next: p.Outbox, failOn: enums.EventCatalogProductUpdated}
	})
	_, err := failing.Update(context.Background(), uuid.New(), before.ID, ProductInput{
		Name:      "UTBK Intensive 2027",
		Stock:     3,
		CourseIDs: []uuid.UUID{added.ID},
		Prices:    []PriceInput{openPrice(275000)},
	})
	require.Error(t, err)

	assertProductUnchanged(t, svc, conn, before, buyer, kept)
}

func TestConcurrentUpdatesLeaveOneConsistentProduct(t *testing.T) {
	client := dbtest.NewPostgres(t)
	conn := client.DB()
	svc := buildCatalogService(t, client)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	first := dbtest.CreateCourse(t, conn, "Penalaran Umum "+suffix)
	second := dbtest.CreateCourse(t, conn, "Literasi Bahasa "+suffix)

	created, err := svc.Create(ctx, uuid.New(), ProductInput{
		Name:   "UTBK Intensive " + suffix,
		Stock:  10,
		Prices: []PriceInput{openPrice(250000)},
	})
	require.NoError(t, err)
	productID := created.Product.ID

	inputs := []ProductInput{
		{Name: "Edition A " + suffix, Stock: 5, CourseIDs: []uuid.UUID{first.ID}, Prices: []PriceInput{openPrice(100000)}},
		{Name: "Edition B " + suffix, Stock: 9, CourseIDs: []uuid.UUID{second.ID}, Prices: []PriceInput{openPrice(120000)}},
	}
	var g errgroup.Group
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			_, err := svc.Update(ctx, uuid.New(), productID, in)
			return err
		})
	}
	require.NoError(t, g.Wait())

	final, err := svc.Get(ctx, productID)
	require.NoError(t, err)
	var winner *ProductInput
	for i := range inputs {
		if inputs[i].Name == final.Name {
			winner = &inputs[i]
		}
	}
	require.NotNil(t, winner, "unexpected name %q", final.Name)
	assert.Equal(t, winner.Stock, final.Stock)
	assert.Equal(t, winner.CourseIDs, final.CourseIDs)
	require.Len(t, final.Prices, 1)
	assert.True(t, winner.Prices[0].Price.Equal(final.Prices[0].Price))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", productID).Count(&events).Error)
	assert.EqualValues(t, 3, events)
}
