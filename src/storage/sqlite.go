package storage

import (
	"database/sql"
	"fmt"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// SQLiteDB is the single-node variant of the portfolio store, used for local
// runs and tests. Same schema and semantics as PostgresDB.
// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("SQLiteDB initialized successfully (%s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			user_id TEXT UNIQUE NOT NULL,
			name TEXT,
			total_value REAL,
			total_gain_loss REAL,
			total_gain_loss_percent REAL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create portfolios: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS holdings (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			quantity REAL,
			average_price REAL,
			current_price REAL,
			total_value REAL,
			gain_loss REAL,
			gain_loss_percent REAL,
			allocation REAL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (portfolio_id, symbol)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create holdings: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS asset_prices (
			symbol TEXT,
			timestamp INTEGER,
			price REAL,
			change_24h REAL,
			volume_24h REAL,
			PRIMARY KEY (symbol, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create asset_prices: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// LoadPortfolio returns the user's portfolio with holdings, or nil when the
// user has none stored.
func (d *SQLiteDB) LoadPortfolio(userID string) (*models.MPortfolioState, error) {
	p := &models.MPortfolioState{UserID: userID}

	row := d.DB.QueryRow(`
		SELECT id, name, total_value, total_gain_loss, total_gain_loss_percent
		FROM portfolios WHERE user_id = ?
	`, userID)
	if err := row.Scan(&p.ID, &p.Name, &p.TotalValue, &p.TotalGainLoss, &p.TotalGainLossPercent); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load portfolio for %s: %w", userID, err)
	}

	rows, err := d.DB.Query(`
		SELECT id, symbol, quantity, average_price, current_price, total_value, gain_loss, gain_loss_percent, allocation
		FROM holdings WHERE portfolio_id = ? ORDER BY symbol
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings for %s: %w", userID, err)
	}
	defer rows.Close()

	p.Holdings = []models.MHolding{}
	for rows.Next() {
		var h models.MHolding
		if err := rows.Scan(&h.ID, &h.Symbol, &h.Quantity, &h.AveragePrice, &h.CurrentPrice, &h.TotalValue, &h.GainLoss, &h.GainLossPercent, &h.Allocation); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		p.Holdings = append(p.Holdings, h)
	}
	return p, rows.Err()
}

// -----------------------------------------------------------------------------

// SaveValuation writes the computed portfolio totals and per-holding values.
func (d *SQLiteDB) SaveValuation(p *models.MPortfolioState) error {
	if p == nil || p.ID == "" {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE portfolios
		SET total_value = ?, total_gain_loss = ?, total_gain_loss_percent = ?, updated_at = ?
		WHERE id = ?
	`, p.TotalValue, p.TotalGainLoss, p.TotalGainLossPercent, time.Now().UTC(), p.ID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		UPDATE holdings
		SET current_price = ?, total_value = ?, gain_loss = ?, gain_loss_percent = ?, allocation = ?, updated_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, h := range p.Holdings {
		if h.ID == "" {
			continue
		}
		_, err := stmt.Exec(h.CurrentPrice, h.TotalValue, h.GainLoss, h.GainLossPercent, h.Allocation, now, h.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

// SaveAssetPrices appends price snapshots to the history table.
func (d *SQLiteDB) SaveAssetPrices(snaps []models.MTickSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO asset_prices (symbol, timestamp, price, change_24h, volume_24h)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		_, err := stmt.Exec(s.Symbol, int64(s.Timestamp*1000), s.Price, s.Change24h, s.Volume24h)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	d.Logger.Info("Cleaning up price history older than %d days (timestamp < %d)...", retentionDays, cutoff)

	if _, err := d.DB.Exec(`DELETE FROM asset_prices WHERE timestamp < ?`, cutoff); err != nil {
		d.Logger.Error("Cleanup asset_prices error: %v", err)
	}

	d.Logger.Info("Cleanup completed")
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
