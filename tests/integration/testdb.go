//go:build integration

// Package integration runs the persistence and webhook paths against a real
// PostgreSQL started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"github.com/storefront/backend/migrations"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	t     *testing.T
}

// NewTestDB starts PostgreSQL, applies every migration and terminates the
// container when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return &TestDB{DB: db, SqlDB: sqlDB, t: t}
}

// Fixture is a seeded pending order
type Fixture struct {
	OrderID  uuid.UUID
	CartID   uuid.UUID
	Variants []uuid.UUID
}

// SeedVariant inserts a variant with the given stock
func (tdb *TestDB) SeedVariant(stock int) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	require.NoError(tdb.t, tdb.DB.Create(&models.ProductVariantModel{
		ID:            id,
		ProductID:     uuid.New(),
		SKU:           "SKU-" + id.String()[:8],
		Name:          "Variant " + id.String()[:8],
		Price:         decimal.NewFromInt(10),
		StockQuantity: stock,
	}).Error)
	return id
}

// SeedOrder creates a pending order with an active cart holding quantities[i]
// of variants[i].
func (tdb *TestDB) SeedOrder(variants []uuid.UUID, quantities []int) Fixture {
	tdb.t.Helper()
	require.Equal(tdb.t, len(variants), len(quantities))

	now := time.Now().UTC()
	fx := Fixture{OrderID: uuid.New(), CartID: uuid.New(), Variants: variants}
	require.NoError(tdb.t, tdb.DB.Create(&models.CartModel{
		ID: fx.CartID, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}).Error)

	o := &order.Order{
		ID:            fx.OrderID,
		OrderNumber:   "ORD-" + fx.OrderID.String()[:8],
		CartID:        &fx.CartID,
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Asha Rao",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	total := decimal.Zero
	for i, variantID := range variants {
		require.NoError(tdb.t, tdb.DB.Create(&models.CartItemModel{
			ID: uuid.New(), CartID: fx.CartID, VariantID: variantID, Quantity: quantities[i],
		}).Error)
		line := decimal.NewFromInt(int64(10 * quantities[i]))
		total = total.Add(line)
		o.Items = append(o.Items, order.Item{
			ID:         uuid.New(),
			VariantID:  variantID,
			SKU:        "SKU-" + variantID.String()[:8],
			Quantity:   quantities[i],
			UnitPrice:  decimal.NewFromInt(10),
			TotalPrice: line,
		})
	}
	o.Subtotal = total
	o.Total = total
	require.NoError(tdb.t, persistence.NewGormOrderRepository(tdb.DB).Create(context.Background(), o))
	return fx
}

// Stock returns the stock of a variant
func (tdb *TestDB) Stock(variantID uuid.UUID) int {
	tdb.t.Helper()
	var v models.ProductVariantModel
	require.NoError(tdb.t, tdb.DB.First(&v, "id = ?", variantID).Error)
	return v.StockQuantity
}

// CartItems counts the items left in a cart
func (tdb *TestDB) CartItems(cartID uuid.UUID) int64 {
	tdb.t.Helper()
	var n int64
	require.NoError(tdb.t, tdb.DB.Model(&models.CartItemModel{}).Where("cart_id = ?", cartID).Count(&n).Error)
	return n
}

// Order loads an order
func (tdb *TestDB) Order(id uuid.UUID) *order.Order {
	tdb.t.Helper()
	o, err := persistence.NewGormOrderRepository(tdb.DB).FindByID(context.Background(), id)
	require.NoError(tdb.t, err)
	return o
}
