package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rideboard/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the core tables.
	if err := db.AutoMigrate(&User{}, &StravaAccount{}, &StravaConfig{}, &Activity{}, &PasswordResetToken{}); err != nil {
		return nil, err
	}

	return db, nil
}

// stalePlanSQLState is the SQLSTATE PostgreSQL reports when a cached
// statement plan no longer matches the table shape ("cached plan must not
// change result type"), typically after a schema change on a long-lived
// pooled connection.
const stalePlanSQLState = "0A000"

// IsStalePlanError reports whether err belongs to the stale prepared-plan
// class that warrants a reconnect and a single retry.
func IsStalePlanError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == stalePlanSQLState
	}
	return strings.Contains(err.Error(), "cached plan must not change result type")
}

// ResetStatementCache discards every cached statement plan held by the
// pooled connections. Called before retrying an upsert that failed with a
// stale-plan error.
func ResetStatementCache(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	// Close idle connections so their per-connection statement caches die
	// with them, then deallocate whatever survives on the active ones.
	sqlDB.SetMaxIdleConns(0)
	defer sqlDB.SetMaxIdleConns(2)
	return db.Exec("DEALLOCATE ALL").Error
}

// EnsureBootstrapAdmin makes sure there is at least one user corresponding
// to the bootstrap credentials in config, so a fresh install can be logged
// into. If a user with that email already exists, it is left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := cfg.AdminUser
	if !strings.Contains(email, "@") {
		email = email + "@localhost"
	}

	var count int64
	if err := db.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &User{
		Email:        email,
		Name:         cfg.AdminUser,
		PasswordHash: string(hash),
	}

	return db.Create(admin).Error
}
