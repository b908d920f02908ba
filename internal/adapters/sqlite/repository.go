package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeStore, ports.ModeStore and
// ports.TradeHistoryRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trend_envelope_bot.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w: %w", filepath.Dir(dbPath), ports.ErrPersistence, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL plus synchronous=FULL: a committed transaction survives a crash
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrPersistence, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrPersistence, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w: %w", ports.ErrPersistence, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// active_trade and bot_state hold at most one row each, pinned by a CHECK on id.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS active_trade (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		symbol TEXT NOT NULL,
		trade_symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		quantity REAL NOT NULL,
		notional REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bot_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		mode TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		trade_symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NULL,
		reentry_price REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_exit_time ON trade_history (symbol, exit_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// inTx runs fn in a transaction and commits only when fn succeeds.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- TradeStore Implementation ---

// SaveActiveTrade replaces the stored active trade in one transaction.
func (r *Repository) SaveActiveTrade(ctx context.Context, t *domain.ActiveTrade) error {
	if t == nil {
		return fmt.Errorf("save active trade: %w: nil trade", ports.ErrInvalidRequest)
	}
	const query = `
	INSERT OR REPLACE INTO active_trade (id, symbol, trade_symbol, side, entry_price, stop_loss,
	                                     take_profit, quantity, notional, opened_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			t.Symbol, t.TradeSymbol, string(t.Side), t.EntryPrice, t.StopLoss,
			t.TakeProfit, t.Quantity, t.Notional, t.OpenedAt.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save active trade for %s: %w: %w", t.Symbol, ports.ErrPersistence, err)
	}
	r.logger.Debug(ctx, "Active trade saved", map[string]interface{}{"symbol": t.Symbol, "stopLoss": t.StopLoss})
	return nil
}

// LoadActiveTrade returns the stored trade, or nil when there is none.
func (r *Repository) LoadActiveTrade(ctx context.Context) (*domain.ActiveTrade, error) {
	const query = `
	SELECT symbol, trade_symbol, side, entry_price, stop_loss, take_profit, quantity, notional, opened_at
	FROM active_trade WHERE id = 1`

	t := &domain.ActiveTrade{}
	var side string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&t.Symbol, &t.TradeSymbol, &side, &t.EntryPrice, &t.StopLoss,
		&t.TakeProfit, &t.Quantity, &t.Notional, &t.OpenedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to load active trade: %w: %w", ports.ErrPersistence, err)
	}
	if t.Side, err = domain.ParseOrderSide(side); err != nil {
		return nil, fmt.Errorf("failed to load active trade: %w: %w", ports.ErrPersistence, err)
	}
	return t, nil
}

// ClearActiveTrade removes the stored trade.
func (r *Repository) ClearActiveTrade(ctx context.Context) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM active_trade`)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear active trade: %w: %w", ports.ErrPersistence, err)
	}
	r.logger.Debug(ctx, "Active trade cleared")
	return nil
}

// --- ModeStore Implementation ---

// GetMode returns the stored mode, writing ENTRY first if none is stored.
func (r *Repository) GetMode(ctx context.Context) (domain.Mode, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT mode FROM bot_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		if err := r.SetMode(ctx, domain.ModeEntry); err != nil {
			return "", err
		}
		return domain.ModeEntry, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read mode: %w: %w", ports.ErrPersistence, err)
	}
	mode, err := domain.ParseMode(raw)
	if err != nil {
		return "", fmt.Errorf("failed to read mode: %w: %w", ports.ErrPersistence, err)
	}
	return mode, nil
}

// SetMode stores mode.
func (r *Repository) SetMode(ctx context.Context, mode domain.Mode) error {
	if _, err := domain.ParseMode(string(mode)); err != nil {
		return fmt.Errorf("set mode: %w: %w", ports.ErrInvalidRequest, err)
	}
	const query = `INSERT OR REPLACE INTO bot_state (id, mode, updated_at) VALUES (1, ?, ?)`
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, string(mode), time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set mode %s: %w: %w", mode, ports.ErrPersistence, err)
	}
	return nil
}

// --- TradeHistoryRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (symbol, trade_symbol, side, entry_price, exit_price, quantity, pnl_percent,
	                           entry_time, exit_time, exit_reason, reentry_price)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.TradeSymbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.PnLPercent, trade.EntryTime.UTC(), trade.ExitTime.UTC(),
		string(trade.ExitReason), trade.ReentryPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade history for symbol %s: %w: %w", trade.Symbol, ports.ErrPersistence, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade history %s: %w: %w", trade.Symbol, ports.ErrPersistence, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade history created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "pnl": trade.PnLPercent})
	return id, nil
}

const tradeColumns = `id, symbol, trade_symbol, side, entry_price, exit_price, quantity, pnl_percent,
	       entry_time, exit_time, exit_reason, reentry_price`

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
	FROM trade_history
	WHERE symbol = ? ORDER BY exit_time DESC, id DESC LIMIT ?`
	return r.queryTrades(ctx, "FindBySymbol", query, symbol, limit)
}

// FindRecent retrieves the most recent trades across all symbols.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
	FROM trade_history
	ORDER BY exit_time DESC, id DESC LIMIT ?`
	return r.queryTrades(ctx, "FindRecent", query, limit)
}

func (r *Repository) queryTrades(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query trade history: %w: %w", op, ports.ErrPersistence, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan trade history: %w: %w", op, ports.ErrPersistence, err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating trade history rows: %w: %w", op, ports.ErrPersistence, err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	th := &domain.Trade{}
	var side string
	var exitReason sql.NullString
	err := s.Scan(
		&th.ID, &th.Symbol, &th.TradeSymbol, &side, &th.EntryPrice, &th.ExitPrice, &th.Quantity,
		&th.PnLPercent, &th.EntryTime, &th.ExitTime, &exitReason, &th.ReentryPrice)
	if err != nil {
		return nil, err
	}
	th.Side = domain.OrderSide(side)
	if exitReason.Valid && exitReason.String != "" {
		th.ExitReason = domain.ExitReason(exitReason.String)
	} else {
		th.ExitReason = domain.ExitReasonUnknown
	}
	return th, nil
}
