package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	dexpkg "github.com/nexusos/dex/internal/dex"
	"github.com/nexusos/dex/internal/farming"
	"github.com/nexusos/dex/internal/logger"
	"github.com/nexusos/dex/internal/state"
	"github.com/nexusos/dex/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for exchange and farming data
type WebServer struct {
	router  *mux.Router
	port    string
	dex     *dexpkg.Engine
	farming *farming.Engine
	withDB  bool
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, dex *dexpkg.Engine, farmingEngine *farming.Engine, withDB bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		dex:     dex,
		farming: farmingEngine,
		withDB:  withDB,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{id}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{id}/quote", ws.handleGetQuote).Methods("GET")
	api.HandleFunc("/tokens", ws.handleGetTokens).Methods("GET")
	api.HandleFunc("/farms", ws.handleGetFarms).Methods("GET")
	api.HandleFunc("/farms/{id}", ws.handleGetFarm).Methods("GET")
	api.HandleFunc("/users/{address}/balances", ws.handleGetUserBalances).Methods("GET")
	api.HandleFunc("/users/{address}/farms", ws.handleGetUserFarms).Methods("GET")
	api.HandleFunc("/actions", ws.handleGetActions).Methods("GET")
	api.HandleFunc("/stats", ws.handleGetStats).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status with runtime stats
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := true
	if ws.withDB {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "nexusos-dex-core",
			"version": "1.0.0",
		},
		"dex_status": map[string]interface{}{
			"persistence_enabled": ws.withDB,
			"database_healthy":    dbHealthy,
			"dex":                 ws.dex.Stats(),
			"farming":             ws.farming.Stats(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetPools returns every pool summary
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.dex.Pools()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

// handleGetPool returns a specific pool by ID
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID := types.PoolID(vars["id"])

	summary, err := ws.dex.PoolSummary(poolID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetQuote prices a swap against a pool without executing it.
// Query parameters: input (token symbol), amount (float).
func (ws *WebServer) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID := types.PoolID(vars["id"])

	summary, err := ws.dex.PoolSummary(poolID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	inputToken := r.URL.Query().Get("input")
	if inputToken == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing input token")
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	outputToken := summary.TokenA
	if inputToken == summary.TokenA {
		outputToken = summary.TokenB
	}

	quote, err := ws.dex.GetQuote(inputToken, outputToken, amount)
	if err != nil {
		webLogger.Error().Err(err).Str("pool_id", string(poolID)).Msg("Failed to compute quote")
		ws.writeErrorResponse(w, http.StatusBadRequest, "Failed to compute quote")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, quote)
}

// handleGetTokens returns all registered tokens
func (ws *WebServer) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := ws.dex.Tokens()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// handleGetFarms returns every active farm summary
func (ws *WebServer) handleGetFarms(w http.ResponseWriter, r *http.Request) {
	farms := ws.farming.AllFarms()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"farms":     farms,
		"count":     len(farms),
		"total_tvl": ws.farming.TotalTVL(),
	})
}

// handleGetFarm returns a specific farm by pool ID
func (ws *WebServer) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID := types.PoolID(vars["id"])

	summary, err := ws.farming.FarmSummary(poolID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Farm not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetUserBalances returns a user's non-zero token balances
func (ws *WebServer) handleGetUserBalances(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"balances": ws.dex.UserBalances(address),
	})
}

// handleGetUserFarms returns a user's farm positions
func (ws *WebServer) handleGetUserFarms(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	positions := ws.farming.UserFarms(address)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":   address,
		"positions": positions,
		"count":     len(positions),
	})
}

// handleGetActions returns recent persisted action receipts
func (ws *WebServer) handleGetActions(w http.ResponseWriter, r *http.Request) {
	if !ws.withDB {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is not enabled")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	actions, err := state.GetRecentActions(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent actions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve actions")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
		"limit":   limit,
	})
}

// handleGetStats returns combined engine statistics
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"dex":       ws.dex.Stats(),
		"farming":   ws.farming.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
