package db

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB wraps the GORM database connection
type DB struct {
	*gorm.DB
}

// NewDB creates a new GORM database connection
func NewDB(connectionString string) (*DB, error) {
	// TranslateError turns driver unique-violation errors into
	// gorm.ErrDuplicatedKey, which the idempotency and webhook stores
	// depend on.
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(
		&PaymentTransaction{},
		&IdempotencyRecord{},
		&WebhookEvent{},
		&Order{},
	); err != nil {
		return nil, err
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
