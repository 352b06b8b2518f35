package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
)

// CreateUser inserts a buyer with contact details.
func CreateUser(t *testing.T, conn *gorm.DB) models.User {
	t.Helper()
	phone := "+6281234567890"
	user := models.User{
		Name:  "Siti Rahma",
		Email: fmt.Sprintf("buyer_%s@example.com", uuid.NewString()),
		Phone: &phone,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateProduct inserts a product with the given stock.
func CreateProduct(t *testing.T, conn *gorm.DB, name string, stock int) models.Product {
	t.Helper()
	product := models.Product{Name: name, Category: "course-bundle", Level: "intermediate", Stock: stock}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// CreateActivePrice inserts an open-ended price that started a day ago.
func CreateActivePrice(t *testing.T, conn *gorm.DB, productID uuid.UUID, amount int64) models.ProductPrice {
	t.Helper()
	price := models.ProductPrice{
		ProductID:      productID,
		Price:          decimal.NewFromInt(amount),
		EffectiveStart: time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
	}
	if err := conn.Create(&price).Error; err != nil {
		t.Fatalf("create price: %v", err)
	}
	return price
}

// AddCartItem puts quantity units of a product into the user's cart, creating the cart when needed.
func AddCartItem(t *testing.T, conn *gorm.DB, userID, productID uuid.UUID, quantity int) models.Cart {
	t.Helper()
	var cart models.Cart
	if err := conn.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		cart = models.Cart{UserID: userID}
		if err := conn.Create(&cart).Error; err != nil {
			t.Fatalf("create cart: %v", err)
		}
	}
	item := models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("create cart item: %v", err)
	}
	return cart
}

// CreateCourse inserts a course.
func CreateCourse(t *testing.T, conn *gorm.DB, title string) models.Course {
	t.Helper()
	course := models.Course{Title: title}
	if err := conn.Create(&course).Error; err != nil {
		t.Fatalf("create course: %v", err)
	}
	return course
}

// CreateExamSchedule inserts an exam schedule.
func CreateExamSchedule(t *testing.T, conn *gorm.DB, title string) models.ExamSchedule {
	t.Helper()
	exam := models.ExamSchedule{Title: title}
	if err := conn.Create(&exam).Error; err != nil {
		t.Fatalf("create exam schedule: %v", err)
	}
	return exam
}

// LinkCourse links a product to a course.
func LinkCourse(t *testing.T, conn *gorm.DB, productID, courseID uuid.UUID) {
	t.Helper()
	if err := conn.Create(&models.ProductCourseLink{ProductID: productID, CourseID: courseID}).Error; err != nil {
		t.Fatalf("link course: %v", err)
	}
}

// LinkExam links a product to an exam schedule.
func LinkExam(t *testing.T, conn *gorm.DB, productID, examID uuid.UUID) {
	t.Helper()
	if err := conn.Create(&models.ProductExamLink{ProductID: productID, ExamScheduleID: examID}).Error; err != nil {
		t.Fatalf("link exam: %v", err)
	}
}

// ProductStock reads the current stock of a product.
func ProductStock(t *testing.T, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.Select("stock").First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product stock: %v", err)
	}
	return product.Stock
}

// OrderLine describes one item of a seeded order.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

// CreateOrder inserts an order header with items and untaxed totals. The
// order number is unique but does not come from the sequencer.
func CreateOrder(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.PaymentStatus, lines ...OrderLine) models.SalesOrderHeader {
	t.Helper()
	total := decimal.Zero
	items := make([]models.SalesOrderItem, 0, len(lines))
	for _, line := range lines {
		unit := decimal.NewFromInt(line.UnitPrice)
		subtotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(subtotal)
		items = append(items, models.SalesOrderItem{
			ProductID:   line.ProductID,
			ProductName: "seeded product",
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			Subtotal:    subtotal,
			Discount:    decimal.Zero,
			Tax:         decimal.Zero,
			Total:       subtotal,
		})
	}
	orderStatus := enums.OrderStatusPending
	if status == enums.PaymentStatusSuccess {
		orderStatus = enums.OrderStatusPaid
	}
	header := models.SalesOrderHeader{
		OrderNumber:   "ORDFE-001-T" + uuid.NewString()[:8],
		UserID:        userID,
		Status:        orderStatus,
		PaymentStatus: status,
		Currency:      "IDR",
		Subtotal:      total,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		GrandTotal:    total,
		ExpiredAt:     time.Now().UTC().Add(24 * time.Hour),
		Items:         items,
	}
	if err := conn.Create(&header).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return header
}
