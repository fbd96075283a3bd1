package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"PulseTrader/agent"
	"PulseTrader/api"
	"PulseTrader/crisis"
	"PulseTrader/dex"
	"PulseTrader/dexmarket"
	"PulseTrader/gather"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/mcp"
	"PulseTrader/notify"
	"PulseTrader/research"
	"PulseTrader/state"
	"PulseTrader/store"
	"PulseTrader/trading"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Info("⚙️  Loaded .env")
	}

	dbPath := envOr("DB_PATH", "pulsetrader.db")
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Errorf("💾 Failed to open store: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := db.Load()
	if err != nil {
		logger.Errorf("💾 Failed to load state: %v", err)
		os.Exit(1)
	}

	// Providers.
	alpaca := market.NewAlpacaClient(
		os.Getenv("ALPACA_API_KEY"),
		os.Getenv("ALPACA_SECRET_KEY"),
		envOr("ALPACA_MODE", "paper") != "live",
	)
	binanceData := market.NewBinanceData(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"))
	scannerClient := dexmarket.NewScannerClient(os.Getenv("DEX_SCANNER_URL"))
	chartClient := dexmarket.NewChartClient(os.Getenv("DEX_CHART_URL"))
	macroClient := crisis.NewMacroClient(os.Getenv("FRED_API_KEY"))

	newLLM := func() mcp.LLM {
		return mcp.NewClient(os.Getenv("LLM_API_KEY"), st.Config.LLMBaseURL)
	}

	validator := market.NewTickerValidator(alpaca)
	notifier := notify.LogSink{}
	researcher := &research.Researcher{LLM: newLLM()}

	tradeEngine := &trading.Engine{
		Brokerage:  alpaca,
		Data:       alpaca,
		CryptoData: binanceData,
		Options:    alpaca,
		Researcher: researcher,
		Notifier:   notifier,
	}

	a := agent.New(st, db)
	a.Brokerage = alpaca
	a.Data = alpaca
	a.Gatherer = &gather.Gatherer{
		Trending:  gather.NewStocktwitsClient(),
		Forum:     gather.NewRedditClient(),
		Crypto:    binanceData,
		Validator: validator,
	}
	a.Researcher = researcher
	a.Trade = tradeEngine
	a.DexScanner = &dex.Scanner{Client: scannerClient}
	a.DexEngine = &dex.Engine{Chart: &dex.ChartGate{Provider: chartClient}, Notifier: notifier}
	a.Crisis = &crisis.Monitor{Macro: macroClient, Notifier: notifier}
	a.Notifier = notifier
	a.SolFetch = market.BinanceSolFetcher(binanceData)

	// Calendar jobs. The SEC refresh only swaps the validator's own ticker set
	// under its lock; the read-counter reset touches agent state, so it posts
	// into the agent loop like any control command.
	jobs := cron.New()
	jobs.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := validator.RefreshSEC(ctx); err != nil {
			logger.Warnf("📇 SEC ticker refresh failed: %v", err)
		}
	})
	jobs.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Do(ctx, func(_ context.Context, st *state.AgentState) {
			st.TwitterReadsToday = 0
			st.TwitterReadsResetAt = time.Now()
		})
	})
	jobs.Start()
	defer jobs.Stop()

	// Control plane.
	server := api.NewServer(a,
		os.Getenv("AUTH_TOKEN"),
		os.Getenv("KILL_TOKEN"),
		newLLM,
	)
	httpServer := &http.Server{
		Addr:    ":" + envOr("PORT", "8090"),
		Handler: server.Handler(),
	}
	go func() {
		logger.Infof("🌐 Control plane listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("🌐 HTTP server failed: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.Run(ctx) // blocks until signal; persists on the way out

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("👋 Shutdown complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
