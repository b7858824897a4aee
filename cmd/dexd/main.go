package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nexusos/dex/internal/config"
	dexpkg "github.com/nexusos/dex/internal/dex"
	"github.com/nexusos/dex/internal/farming"
	"github.com/nexusos/dex/internal/ledger"
	"github.com/nexusos/dex/internal/logger"
	"github.com/nexusos/dex/internal/state"
	"github.com/nexusos/dex/internal/tier"
	"github.com/nexusos/dex/internal/types"
	"github.com/nexusos/dex/internal/web"
)

const (
	SNAPSHOT_INTERVAL = 10 * time.Minute
)

// main is the entry point for the exchange daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("NexusOS DEX Core Starting...")

	// Initialize database persistence when a host is configured; the engines run
	// fully in memory otherwise.
	var recorder types.Recorder = types.NopRecorder{}
	withDB := os.Getenv("DB_HOST") != ""
	if withDB {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		pgRecorder, err := state.NewPGRecorder()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt recorder")
		}
		recorder = pgRecorder
	} else {
		log.Warn().Msg("DB_HOST not set; running without persistence.")
	}

	// --- 2. Ledger and Engine Initialization ---
	ldg, err := ledger.NewInMemoryLedger(config.TreasuryBalanceNXT, config.RewardSourceBalanceNXT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger")
	}
	schedule := tier.DefaultSchedule()

	dexEngine, err := dexpkg.NewEngine(dexpkg.Config{
		BaseCurrency:   config.BaseCurrency,
		Ledger:         ldg,
		Recorder:       recorder,
		Schedule:       schedule,
		WithdrawalLock: config.WithdrawalLock,
		ValidatorPool:  config.ValidatorPool,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exchange engine")
	}

	farmingEngine, err := farming.NewEngine(farming.Config{
		DEX:            dexEngine,
		Ledger:         ldg,
		Recorder:       recorder,
		Schedule:       schedule,
		BaseRewardRate: config.FarmBaseRewardRate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create farming engine")
	}

	if err := bootstrapGenesis(dexEngine); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap genesis tokens")
	}
	log.Info().Msg("Engines initialized")

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, dexEngine, farmingEngine, withDB)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting DEX web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Snapshot Loop and Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(SNAPSHOT_INTERVAL)
	defer ticker.Stop()

	log.Info().Str("interval", SNAPSHOT_INTERVAL.String()).Msg("Starting snapshot loop")
	for {
		select {
		case <-ticker.C:
			snapshotAll(dexEngine, farmingEngine, recorder)
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, exiting")
			return
		}
	}
}

// bootstrapGenesis mints the base currency to the treasury and registers the
// standard genesis tokens.
func bootstrapGenesis(engine *dexpkg.Engine) error {
	if err := engine.MintToken(engine.BaseCurrency(), ledger.TreasuryAccount, config.TreasuryBalanceNXT); err != nil {
		return err
	}
	if _, err := engine.CreateToken("USDC", "USD Coin", 6, 10_000_000, ledger.TreasuryAccount); err != nil {
		return err
	}
	if _, err := engine.CreateToken("GOV", "Governance Token", 6, 1_000_000, ledger.TreasuryAccount); err != nil {
		return err
	}
	return nil
}

// snapshotAll persists a point-in-time view of every pool and farm.
func snapshotAll(dexEngine *dexpkg.Engine, farmingEngine *farming.Engine, recorder types.Recorder) {
	for _, pool := range dexEngine.Pools() {
		if err := recorder.SnapshotPool(pool); err != nil {
			log.Error().Err(err).Str("pool_id", string(pool.PoolID)).Msg("Failed to snapshot pool")
		}
	}
	for _, farm := range farmingEngine.AllFarms() {
		if err := recorder.SnapshotFarm(farm); err != nil {
			log.Error().Err(err).Str("pool_id", string(farm.PoolID)).Msg("Failed to snapshot farm")
		}
	}
	log.Debug().Msg("Snapshots persisted")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
