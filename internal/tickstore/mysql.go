package tickstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

// maxExpiries is how many upcoming expiries are reported per index.
const maxExpiries = 4

// MySQLStore implements TickSource against the collector's MySQL schema.
type MySQLStore struct {
	db       *sql.DB
	database string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	candles []models.Candle
	expires time.Time
}

var _ TickSource = (*MySQLStore)(nil)

// NewMySQLStore opens a connection to the tick store. The DSN must
// include parseTime=true so datetime columns scan into time.Time.
func NewMySQLStore(dsn, database string, cacheTTL time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tick store: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &MySQLStore{
		db:       db,
		database: database,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
	}, nil
}

// Close closes the database connection.
func (m *MySQLStore) Close() error {
	return m.db.Close()
}

// Ping verifies connectivity to the tick store.
func (m *MySQLStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Candles returns the minute candles for the leg's instrument on the
// given date. Results are cached per instrument and date.
func (m *MySQLStore) Candles(ctx context.Context, leg models.StrategyLeg, date time.Time) ([]models.Candle, error) {
	table := utils.TickTableName(leg.IndexName, leg.Strike, leg.Expiry, leg.OptionType)
	key := fmt.Sprintf("%s|%s", table, date.In(utils.IndiaLocation).Format("2006-01-02"))

	m.mu.RLock()
	if entry, ok := m.cache[key]; ok && time.Now().Before(entry.expires) {
		m.mu.RUnlock()
		return entry.candles, nil
	}
	m.mu.RUnlock()

	exists, err := m.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewDataError("candles", table, "instrument table not found", apperrors.ErrSymbolNotFound)
	}

	start, end := utils.DayBounds(date)

	// Table names are validated against information_schema above and
	// built from enum fields, so interpolation is safe here.
	query := fmt.Sprintf(`
		SELECT datetime, open, high, low, close, volume
		FROM %s
		WHERE datetime >= ? AND datetime < ?
		ORDER BY datetime ASC
	`, quoteIdent(table))

	rows, err := m.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles from %s: %w", table, err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	m.mu.Lock()
	m.cache[key] = cacheEntry{candles: candles, expires: time.Now().Add(m.cacheTTL)}
	m.mu.Unlock()

	return candles, nil
}

// AvailableExpiries discovers expiries by parsing instrument table
// names, keeping those on or after the given date, ascending, capped
// at four.
func (m *MySQLStore) AvailableExpiries(ctx context.Context, index models.IndexName, onOrAfter time.Time) ([]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_name LIKE ?
	`, m.database, string(index)+"\\_%")
	if err != nil {
		return nil, fmt.Errorf("failed to list instrument tables: %w", err)
	}
	defer rows.Close()

	seen := make(map[time.Time]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}

		parsedIndex, _, expiry, _, ok := utils.ParseTickTableName(name)
		if !ok || parsedIndex != index {
			continue
		}
		if expiry.Before(startOfDay(onOrAfter)) {
			continue
		}
		seen[expiry] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	expiries := make([]time.Time, 0, len(seen))
	for e := range seen {
		expiries = append(expiries, e)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	if len(expiries) > maxExpiries {
		expiries = expiries[:maxExpiries]
	}
	return expiries, nil
}

func (m *MySQLStore) tableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`, m.database, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func startOfDay(t time.Time) time.Time {
	d := t.In(utils.IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, utils.IndiaLocation)
}
