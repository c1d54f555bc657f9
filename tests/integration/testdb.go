// Package integration runs the analytics API against a real PostgreSQL
// database started with testcontainers.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated analytics database
type TestDB struct {
	DB  *gorm.DB
	DSN string
	t   *testing.T
}

// NewSharedTestDB returns a connection to the package's shared container,
// starting and migrating it on first use. Tests call CleanTables to isolate
// their fixtures.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()
	if sharedContainer == nil {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("pharmalytics_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		sharedContainer = container
		sharedContainerDSN = dsn

		db := connect(t, dsn)
		sqlDB, err := db.DB()
		require.NoError(t, err)

		m, err := migration.New(sqlDB, findMigrationsPath(t), nil)
		require.NoError(t, err, "Failed to load migrations")
		require.NoError(t, m.Up(), "Failed to run migrations")
		require.NoError(t, m.Close())
	}

	tdb := &TestDB{DB: connect(t, sharedContainerDSN), DSN: sharedContainerDSN, t: t}
	t.Cleanup(func() {
		if sqlDB, err := tdb.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return tdb
}

// CleanupSharedContainer terminates the shared container. Call it from TestMain.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}

// CleanTables empties every read-model table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	err := tdb.DB.Exec(`TRUNCATE TABLE product_orders, orders, sales, inventory_snapshots,
		internal_products, global_products, pharmacies CASCADE`).Error
	require.NoError(tdb.t, err, "Failed to truncate tables")
}

// Product is a global catalogue entry fixture
type Product struct {
	Code          string
	Name          string
	Laboratory    string
	Category      string
	TVA           float64
	GenericStatus string
	Reimbursable  bool
	PriceHT       float64
	PriceTTC      float64
}

// CreatePharmacy inserts a pharmacy and returns its id
func (tdb *TestDB) CreatePharmacy(name, area string) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO pharmacies (id, name, area) VALUES (?, ?, ?)`, id, name, area).Error
	require.NoError(tdb.t, err, "Failed to create pharmacy")
	return id
}

// CreateProduct inserts a catalogue entry
func (tdb *TestDB) CreateProduct(p Product) {
	tdb.t.Helper()
	if p.GenericStatus == "" {
		p.GenericStatus = "none"
	}
	err := tdb.DB.Exec(`
		INSERT INTO global_products (code_13_ref, name, brand_lab, category, tva_percentage,
			generic_status, is_reimbursable, manufacturer_price_ht, public_price_ttc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Code, p.Name, p.Laboratory, p.Category, p.TVA,
		p.GenericStatus, p.Reimbursable, p.PriceHT, p.PriceTTC,
	).Error
	require.NoError(tdb.t, err, "Failed to create product")
}

// Stock lists code in a pharmacy and returns the internal product id
func (tdb *TestDB) Stock(pharmacyID uuid.UUID, code string) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO internal_products (id, pharmacy_id, code_13_ref) VALUES (?, ?, ?)`,
		id, pharmacyID, code).Error
	require.NoError(tdb.t, err, "Failed to create internal product")
	return id
}

// Sell records a sales line
func (tdb *TestDB) Sell(productID uuid.UUID, date string, quantity, unitPriceTTC, purchasePrice float64) {
	tdb.t.Helper()
	err := tdb.DB.Exec(`
		INSERT INTO sales (product_id, sale_date, quantity, unit_price_ttc, weighted_average_price)
		VALUES (?, ?, ?, ?, ?)`,
		productID, date, quantity, unitPriceTTC, purchasePrice,
	).Error
	require.NoError(tdb.t, err, "Failed to create sale")
}

// Snapshot records the stock level of a product on date
func (tdb *TestDB) Snapshot(productID uuid.UUID, date string, stock float64) {
	tdb.t.Helper()
	err := tdb.DB.Exec(`INSERT INTO inventory_snapshots (product_id, snapshot_date, stock) VALUES (?, ?, ?)`,
		productID, date, stock).Error
	require.NoError(tdb.t, err, "Failed to create inventory snapshot")
}

// Order records a single-line supplier order
func (tdb *TestDB) Order(pharmacyID, productID uuid.UUID, sentDate string, ordered, received float64) {
	tdb.t.Helper()
	orderID := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO orders (id, pharmacy_id, supplier, sent_date) VALUES (?, ?, 'wholesaler', ?)`,
		orderID, pharmacyID, sentDate).Error
	require.NoError(tdb.t, err, "Failed to create order")

	err = tdb.DB.Exec(`
		INSERT INTO product_orders (order_id, product_id, quantity_ordered, quantity_received)
		VALUES (?, ?, ?, ?)`,
		orderID, productID, ordered, received,
	).Error
	require.NoError(tdb.t, err, "Failed to create order line")
}

func connect(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), cfg)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	return db
}

// findMigrationsPath walks up from this file to the repository's migrations directory
func findMigrationsPath(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Could not resolve caller")

	dir := filepath.Dir(filename)
	for range 5 {
		candidate := filepath.Join(dir, migration.DefaultPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("Could not find migrations directory")
	return ""
}
