package fundboard

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options controls Core initialization.
type Options struct {
	DBPath string
	Logger *slog.Logger

	// DataServiceURL is the base URL of the companion market data service.
	DataServiceURL string
	// NewsProvider selects the news search backend: "service" or "tavily".
	NewsProvider string
	TavilyURL    string

	HTTPTimeout     time.Duration
	NewsTimeout     time.Duration
	MarketRateLimit int

	AnalysisTimeout time.Duration
	ChatTimeout     time.Duration
	ProbeTimeout    time.Duration

	// Market and News replace the HTTP gateways when set.
	Market MarketDataGateway
	News   NewsSearchGateway
}

// Core provides access to FundBoard business logic and storage.
type Core struct {
	db     *sql.DB
	logger *slog.Logger
	market MarketDataGateway
	news   NewsSearchGateway
	dbPath string

	analysisTimeout time.Duration
	chatTimeout     time.Duration
	probeTimeout    time.Duration
}

// Open initializes a Core using the provided database path.
func Open(dbPath string) (*Core, error) {
	return OpenWithOptions(Options{DBPath: dbPath})
}

// OpenWithOptions initializes a Core using the provided options.
func OpenWithOptions(opts Options) (*Core, error) {
	if opts.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.DBPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Warn("pragma busy_timeout failed", "err", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logger.Warn("pragma foreign_keys failed", "err", err)
	}

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}

	market := opts.Market
	if market == nil {
		market = NewMarketDataClient(
			WithBaseURL(opts.DataServiceURL),
			WithTimeout(defaultDuration(opts.HTTPTimeout, defaultGatewayTimeout)),
			WithRateLimit(opts.MarketRateLimit),
			WithLogger(logger),
		)
	}
	news := opts.News
	if news == nil {
		news = newNewsGateway(opts, logger)
	}

	return &Core{
		db:              db,
		logger:          logger,
		market:          market,
		news:            news,
		dbPath:          cleanPath,
		analysisTimeout: defaultDuration(opts.AnalysisTimeout, analysisLLMTimeout),
		chatTimeout:     defaultDuration(opts.ChatTimeout, chatLLMTimeout),
		probeTimeout:    defaultDuration(opts.ProbeTimeout, probeLLMTimeout),
	}, nil
}

// Close releases database resources.
func (c *Core) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DBPath returns the underlying database path.
func (c *Core) DBPath() string {
	return c.dbPath
}

// Logger returns the logger the core was opened with.
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// Ping checks that the database is reachable.
func (c *Core) Ping() error {
	if c == nil || c.db == nil {
		return errors.New("core is closed")
	}
	return c.db.Ping()
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
