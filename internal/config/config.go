package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables. Populated at startup by
// LoadConfig; .env loading happens in main before this runs.
var (
	// BaseCurrency is the symbol every pool pairs against.
	BaseCurrency string

	// WithdrawalLock is how long a liquidity withdrawal request must age before it
	// can execute. Zero executes withdrawals immediately (requests are still logged).
	WithdrawalLock time.Duration

	// FarmBaseRewardRate is the default daily reward fraction for new farms.
	FarmBaseRewardRate float64

	// ValidatorPool is the ledger account receiving routed swap fees.
	ValidatorPool string

	// TreasuryBalanceNXT and RewardSourceBalanceNXT seed the ledger at genesis.
	TreasuryBalanceNXT     float64
	RewardSourceBalanceNXT float64

	// WebPort is the HTTP API listen port.
	WebPort string
)

const (
	defaultBaseCurrency       = "NXT"
	defaultFarmBaseRewardRate = 0.01
	defaultValidatorPool      = "VALIDATOR_POOL"
	defaultTreasuryNXT        = 1_000_000_000.0
	defaultRewardSourceNXT    = 100_000_000.0
	defaultWebPort            = "8080"
)

// LoadConfig reads configuration from environment variables, applying defaults where
// a variable is unset.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	BaseCurrency = getEnvOr("BASE_CURRENCY", defaultBaseCurrency)
	ValidatorPool = getEnvOr("VALIDATOR_POOL_ADDRESS", defaultValidatorPool)
	WebPort = getEnvOr("WEB_PORT", defaultWebPort)

	lockHours, err := getEnvAsFloat64Or("WITHDRAWAL_LOCK_HOURS", 0)
	if err != nil {
		return err
	}
	if lockHours < 0 {
		return errors.New("WITHDRAWAL_LOCK_HOURS must not be negative")
	}
	WithdrawalLock = time.Duration(lockHours * float64(time.Hour))

	FarmBaseRewardRate, err = getEnvAsFloat64Or("FARM_BASE_REWARD_RATE", defaultFarmBaseRewardRate)
	if err != nil {
		return err
	}

	TreasuryBalanceNXT, err = getEnvAsFloat64Or("TREASURY_BALANCE_NXT", defaultTreasuryNXT)
	if err != nil {
		return err
	}

	RewardSourceBalanceNXT, err = getEnvAsFloat64Or("REWARD_SOURCE_BALANCE_NXT", defaultRewardSourceNXT)
	if err != nil {
		return err
	}

	log.Debug().
		Str("BaseCurrency", BaseCurrency).
		Dur("WithdrawalLock", WithdrawalLock).
		Float64("FarmBaseRewardRate", FarmBaseRewardRate).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnvOr retrieves a string environment variable, falling back to a default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsFloat64Or retrieves an environment variable as a float64, falling back to a
// default when unset. Returns an error for an unparsable value.
func getEnvAsFloat64Or(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}
