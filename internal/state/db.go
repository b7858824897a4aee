// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS action_receipts (
			receipt_id SERIAL PRIMARY KEY,
			action_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			action_type VARCHAR(50) NOT NULL,
			pool_id VARCHAR(64) NOT NULL,
			account VARCHAR(128) NOT NULL,
			input_token VARCHAR(32),
			output_token VARCHAR(32),
			amount_a DECIMAL(30, 10),
			amount_b DECIMAL(30, 10),
			lp_amount DECIMAL(30, 10),
			rewards_nxt DECIMAL(30, 10),
			fee_amount DECIMAL(30, 10),
			fee_routed BOOLEAN,
			settlement_tx_id VARCHAR(128)
		);
		CREATE INDEX IF NOT EXISTS idx_action_receipts_timestamp ON action_receipts(action_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_action_receipts_pool_id ON action_receipts(pool_id);
		CREATE INDEX IF NOT EXISTS idx_action_receipts_action_type ON action_receipts(action_type);

		CREATE TABLE IF NOT EXISTS pool_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			pool_id VARCHAR(64) NOT NULL,
			token_a VARCHAR(32) NOT NULL,
			token_b VARCHAR(32) NOT NULL,
			reserve_a DECIMAL(30, 10) NOT NULL,
			reserve_b DECIMAL(30, 10) NOT NULL,
			lp_token_supply DECIMAL(30, 10) NOT NULL,
			tvl DECIMAL(30, 10) NOT NULL,
			fee_rate DECIMAL(10, 6) NOT NULL,
			tier VARCHAR(32) NOT NULL,
			total_volume_a DECIMAL(30, 10) NOT NULL,
			total_volume_b DECIMAL(30, 10) NOT NULL,
			total_fees_collected DECIMAL(30, 10) NOT NULL,
			provider_count INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_timestamp ON pool_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_id ON pool_snapshots(pool_id);

		CREATE TABLE IF NOT EXISTS farm_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			pool_id VARCHAR(64) NOT NULL,
			total_staked_lp DECIMAL(30, 10) NOT NULL,
			tvl DECIMAL(30, 10) NOT NULL,
			apy DECIMAL(10, 4) NOT NULL,
			tier VARCHAR(32) NOT NULL,
			multiplier DECIMAL(10, 4) NOT NULL,
			staker_count INTEGER NOT NULL,
			total_rewards_distributed DECIMAL(30, 10) NOT NULL,
			active BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_farm_snapshots_timestamp ON farm_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_farm_snapshots_pool_id ON farm_snapshots(pool_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
