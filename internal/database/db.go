package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL, verifies the connection and ensures the schema
// exists.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// migrate creates tables if they do not exist.  The statements are
// idempotent so the server can run them unconditionally at startup.
func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            CHAR(36) PRIMARY KEY,
			email         VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			display_name  VARCHAR(120) NOT NULL DEFAULT '',
			is_active     TINYINT(1) NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			user_id    CHAR(36) NOT NULL,
			token_hash CHAR(64) NOT NULL,
			expires_at DATETIME NOT NULL,
			revoked_at DATETIME NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_refresh_tokens_hash (token_hash),
			CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			id                  CHAR(36) PRIMARY KEY,
			owner_id            CHAR(36) NOT NULL,
			title               VARCHAR(200) NOT NULL,
			description         TEXT NOT NULL,
			mode                ENUM('sell','rent','donate') NOT NULL,
			selling_price_cents BIGINT NOT NULL DEFAULT 0,
			rental_price_cents  BIGINT NOT NULL DEFAULT 0,
			deposit_cents       BIGINT NOT NULL DEFAULT 0,
			status              ENUM('available','reserved','exchanged','unpaid','completed') NOT NULL DEFAULT 'available',
			reserved_for        CHAR(36) NULL,
			reserved_at         DATETIME NULL,
			completed_at        DATETIME NULL,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_listings_owner (owner_id),
			INDEX idx_listings_status (status),
			CONSTRAINT fk_listings_owner FOREIGN KEY (owner_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_sessions (
			listing_id CHAR(36) PRIMARY KEY,
			seller_id  CHAR(36) NOT NULL,
			buyer_id   CHAR(36) NOT NULL,
			channel_id VARCHAR(128) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_sessions_buyer (buyer_id),
			CONSTRAINT fk_sessions_listing FOREIGN KEY (listing_id) REFERENCES listings(id)
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			listing_id   CHAR(36) PRIMARY KEY,
			seller_id    CHAR(36) NOT NULL,
			buyer_id     CHAR(36) NOT NULL,
			amount_cents BIGINT NOT NULL,
			status       VARCHAR(20) NOT NULL,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_payments_listing FOREIGN KEY (listing_id) REFERENCES listings(id)
		)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
