// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Users table
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		hashed_password TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Portfolios table
	CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	-- Saved option legs per portfolio
	CREATE TABLE IF NOT EXISTS option_legs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id INTEGER NOT NULL,
		index_name TEXT NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL,
		expiry DATETIME NOT NULL,
		action TEXT NOT NULL,
		lots INTEGER NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id) ON DELETE CASCADE
	);

	-- Backtest runs table
	CREATE TABLE IF NOT EXISTS backtests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		backtest_date DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		net_premium_start TEXT,
		net_premium_end TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	-- Strategy legs frozen per run
	CREATE TABLE IF NOT EXISTS backtest_legs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		backtest_id INTEGER NOT NULL,
		index_name TEXT NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL,
		expiry DATETIME NOT NULL,
		action TEXT NOT NULL,
		lots INTEGER NOT NULL,
		FOREIGN KEY (backtest_id) REFERENCES backtests(id) ON DELETE CASCADE
	);

	-- Net premium time series per run. net_premium is a decimal string
	-- so values round-trip exactly.
	CREATE TABLE IF NOT EXISTS backtest_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		backtest_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		net_premium TEXT NOT NULL,
		volume INTEGER DEFAULT 0,
		UNIQUE(backtest_id, timestamp),
		FOREIGN KEY (backtest_id) REFERENCES backtests(id) ON DELETE CASCADE
	);

	-- Latest price per symbol from the live feed
	CREATE TABLE IF NOT EXISTS live_prices (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL,
		timestamp DATETIME NOT NULL
	);

	-- Audit log table
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id INTEGER,
		user_id INTEGER,
		details TEXT,
		snapshot TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_portfolios_user ON portfolios(user_id);
	CREATE INDEX IF NOT EXISTS idx_legs_portfolio ON option_legs(portfolio_id);
	CREATE INDEX IF NOT EXISTS idx_backtests_user ON backtests(user_id);
	CREATE INDEX IF NOT EXISTS idx_backtests_status ON backtests(status);
	CREATE INDEX IF NOT EXISTS idx_results_backtest ON backtest_results(backtest_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// User Methods
// ============================================================================

// CreateUser inserts a new user. Returns ErrUsernameTaken when the
// username already exists.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, user.Username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists > 0 {
		return apperrors.ErrUsernameTaken
	}

	user.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, hashed_password, created_at)
		VALUES (?, ?, ?, ?)
	`, user.Username, user.Email, user.HashedPassword, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, hashed_password, created_at FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, hashed_password, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ============================================================================
// Portfolio Methods
// ============================================================================

// CreatePortfolio inserts a new portfolio for a user.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (user_id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.UserID, p.Name, p.Description, boolToInt(p.IsActive), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get portfolio id: %w", err)
	}
	return nil
}

// GetPortfolio retrieves a portfolio owned by the given user.
func (s *SQLiteStore) GetPortfolio(ctx context.Context, id, userID int64) (*models.Portfolio, error) {
	var p models.Portfolio
	var isActive int
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.user_id, p.name, p.description, p.is_active, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM option_legs WHERE portfolio_id = p.id)
		FROM portfolios p WHERE p.id = ? AND p.user_id = ?
	`, id, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &isActive, &p.CreatedAt, &p.UpdatedAt, &p.LegCount)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	p.IsActive = isActive == 1
	return &p, nil
}

// ListPortfolios retrieves all portfolios for a user.
func (s *SQLiteStore) ListPortfolios(ctx context.Context, userID int64) ([]models.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.name, p.description, p.is_active, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM option_legs WHERE portfolio_id = p.id)
		FROM portfolios p WHERE p.user_id = ?
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		var isActive int
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &isActive, &p.CreatedAt, &p.UpdatedAt, &p.LegCount); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.IsActive = isActive == 1
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// UpdatePortfolio updates the mutable fields of a portfolio.
func (s *SQLiteStore) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE portfolios SET name = ?, description = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, p.Name, p.Description, boolToInt(p.IsActive), p.UpdatedAt, p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return requireAffected(res)
}

// DeletePortfolio removes a portfolio and its legs.
func (s *SQLiteStore) DeletePortfolio(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM portfolios WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Portfolio Leg Methods
// ============================================================================

// AddPortfolioLeg inserts a saved option leg.
func (s *SQLiteStore) AddPortfolioLeg(ctx context.Context, leg *models.PortfolioLeg) error {
	leg.SavedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO option_legs (portfolio_id, index_name, strike, option_type, expiry, action, lots, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, leg.PortfolioID, leg.IndexName, leg.Strike, leg.OptionType, leg.Expiry, leg.Action, leg.Lots, leg.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to add option leg: %w", err)
	}

	leg.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get leg id: %w", err)
	}
	return nil
}

// GetPortfolioLegs retrieves all saved legs of a portfolio.
func (s *SQLiteStore) GetPortfolioLegs(ctx context.Context, portfolioID int64) ([]models.PortfolioLeg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, index_name, strike, option_type, expiry, action, lots, saved_at
		FROM option_legs WHERE portfolio_id = ?
		ORDER BY saved_at ASC, id ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query option legs: %w", err)
	}
	defer rows.Close()

	var legs []models.PortfolioLeg
	for rows.Next() {
		var l models.PortfolioLeg
		if err := rows.Scan(&l.ID, &l.PortfolioID, &l.IndexName, &l.Strike, &l.OptionType, &l.Expiry, &l.Action, &l.Lots, &l.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option leg: %w", err)
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

// UpdatePortfolioLeg rewrites a saved leg in place. The portfolio id
// guards against cross-portfolio leg ids.
func (s *SQLiteStore) UpdatePortfolioLeg(ctx context.Context, leg *models.PortfolioLeg) error {
	leg.SavedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE option_legs
		SET index_name = ?, strike = ?, option_type = ?, expiry = ?, action = ?, lots = ?, saved_at = ?
		WHERE id = ? AND portfolio_id = ?
	`, leg.IndexName, leg.Strike, leg.OptionType, leg.Expiry, leg.Action, leg.Lots, leg.SavedAt, leg.ID, leg.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to update option leg: %w", err)
	}
	return requireAffected(res)
}

// DeletePortfolioLeg removes a saved leg from a portfolio.
func (s *SQLiteStore) DeletePortfolioLeg(ctx context.Context, legID, portfolioID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM option_legs WHERE id = ? AND portfolio_id = ?
	`, legID, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to delete option leg: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Backtest Run Methods
// ============================================================================

// SaveRun persists a new run with its legs in a single transaction.
// The run starts in the running state.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.BacktestRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	run.Status = models.RunRunning
	run.CreatedAt = time.Now().UTC()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtests (user_id, name, description, backtest_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.UserID, run.Name, run.Description, run.BacktestDate, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_legs (backtest_id, index_name, strike, option_type, expiry, action, lots)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare leg statement: %w", err)
	}
	defer stmt.Close()

	for i := range run.Legs {
		leg := &run.Legs[i]
		legRes, err := stmt.ExecContext(ctx, run.ID, leg.IndexName, leg.Strike, leg.OptionType, leg.Expiry, leg.Action, leg.Lots)
		if err != nil {
			return fmt.Errorf("failed to insert leg: %w", err)
		}
		leg.ID, _ = legRes.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its legs.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*models.BacktestRun, error) {
	var run models.BacktestRun
	var errText, startText, endText sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, backtest_date, status, error,
		       net_premium_start, net_premium_end, created_at, completed_at
		FROM backtests WHERE id = ?
	`, id).Scan(&run.ID, &run.UserID, &run.Name, &run.Description, &run.BacktestDate,
		&run.Status, &errText, &startText, &endText, &run.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.Error = errText.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if run.NetPremiumStart, err = parseDecimalText(startText); err != nil {
		return nil, fmt.Errorf("failed to parse net_premium_start: %w", err)
	}
	if run.NetPremiumEnd, err = parseDecimalText(endText); err != nil {
		return nil, fmt.Errorf("failed to parse net_premium_end: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, index_name, strike, option_type, expiry, action, lots
		FROM backtest_legs WHERE backtest_id = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.StrategyLeg
		if err := rows.Scan(&l.ID, &l.IndexName, &l.Strike, &l.OptionType, &l.Expiry, &l.Action, &l.Lots); err != nil {
			return nil, fmt.Errorf("failed to scan leg: %w", err)
		}
		run.Legs = append(run.Legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legs: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.BacktestRun, error) {
	query := `SELECT id, user_id, name, description, backtest_date, status, error,
	          net_premium_start, net_premium_end, created_at, completed_at FROM backtests WHERE 1=1`
	args := []interface{}{}

	if filter.UserID > 0 {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.BacktestRun
	for rows.Next() {
		var run models.BacktestRun
		var errText, startText, endText sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&run.ID, &run.UserID, &run.Name, &run.Description, &run.BacktestDate,
			&run.Status, &errText, &startText, &endText, &run.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Error = errText.String
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if run.NetPremiumStart, err = parseDecimalText(startText); err != nil {
			return nil, fmt.Errorf("failed to parse net_premium_start: %w", err)
		}
		if run.NetPremiumEnd, err = parseDecimalText(endText); err != nil {
			return nil, fmt.Errorf("failed to parse net_premium_end: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CompleteRun marks a running run as completed. The status guard makes
// the transition happen at most once.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id int64, start, end string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backtests SET status = ?, net_premium_start = ?, net_premium_end = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, models.RunCompleted, start, end, completedAt, id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return requireTransition(res)
}

// FailRun marks a running run as failed with a reason.
func (s *SQLiteStore) FailRun(ctx context.Context, id int64, reason string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backtests SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, models.RunFailed, reason, completedAt, id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	return requireTransition(res)
}

// SaveResults persists a run's sample series in a single transaction.
func (s *SQLiteStore) SaveResults(ctx context.Context, runID int64, samples []models.NetPremiumSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_results (backtest_id, timestamp, net_premium, volume)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		_, err := stmt.ExecContext(ctx, runID, sample.Timestamp, sample.NetPremium.String(), sample.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetResults retrieves a run's samples ordered by timestamp.
func (s *SQLiteStore) GetResults(ctx context.Context, runID int64) ([]models.NetPremiumSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, net_premium, volume
		FROM backtest_results WHERE backtest_id = ?
		ORDER BY timestamp ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var samples []models.NetPremiumSample
	for rows.Next() {
		var sample models.NetPremiumSample
		var premium string
		if err := rows.Scan(&sample.Timestamp, &premium, &sample.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.NetPremium, err = decimal.NewFromString(premium)
		if err != nil {
			return nil, fmt.Errorf("failed to parse net premium %q: %w", premium, err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// ============================================================================
// Live Price Methods
// ============================================================================

// UpsertLivePrice stores the latest known price for a symbol.
func (s *SQLiteStore) UpsertLivePrice(ctx context.Context, price models.LivePrice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_prices (symbol, price, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET price = excluded.price, timestamp = excluded.timestamp
	`, price.Symbol, price.Price, price.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert live price: %w", err)
	}
	return nil
}

// GetLivePrice retrieves the latest known price for a symbol.
func (s *SQLiteStore) GetLivePrice(ctx context.Context, symbol string) (*models.LivePrice, error) {
	var p models.LivePrice
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, price, timestamp FROM live_prices WHERE symbol = ?
	`, symbol).Scan(&p.Symbol, &p.Price, &p.Timestamp)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query live price: %w", err)
	}
	return &p, nil
}

// ============================================================================
// Audit Methods
// ============================================================================

// AppendAudit inserts an audit entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	entry.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, entity, entity_id, user_id, details, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Action, entry.Entity, entry.EntityID, entry.UserID, entry.Details, entry.Snapshot, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// RecentAudit retrieves the most recent audit entries.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity, entity_id, user_id, details, snapshot, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details, snapshot sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &e.UserID, &details, &snapshot, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Details = details.String
		e.Snapshot = snapshot.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AuditStats summarizes the audit log for health reporting.
func (s *SQLiteStore) AuditStats(ctx context.Context) (*AuditStats, error) {
	var stats AuditStats
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(created_at) FROM audit_log
	`).Scan(&stats.TotalEntries, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	if last.Valid {
		stats.LastEntry = last.Time
	}
	return &stats, nil
}

// ============================================================================
// Helpers
// ============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDecimalText(text sql.NullString) (*decimal.Decimal, error) {
	if !text.Valid || text.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(text.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func requireTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrRunTerminal
	}
	return nil
}
