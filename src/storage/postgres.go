package storage

import (
	"database/sql"
	"fmt"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// PostgresDB persists portfolio valuations and the asset price history in the
// shared application database. Portfolio and holding rows are owned by the
// main application; valuation only updates the computed columns, so tables
// are created IF NOT EXISTS and never dropped.
// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	return &PostgresDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			user_id TEXT UNIQUE NOT NULL,
			name TEXT,
			total_value DOUBLE PRECISION,
			total_gain_loss DOUBLE PRECISION,
			total_gain_loss_percent DOUBLE PRECISION,
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
			quantity DOUBLE PRECISION,
			average_price DOUBLE PRECISION,
			current_price DOUBLE PRECISION,
			total_value DOUBLE PRECISION,
			gain_loss DOUBLE PRECISION,
			gain_loss_percent DOUBLE PRECISION,
			allocation DOUBLE PRECISION,
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
			timestamp BIGINT,
			price DOUBLE PRECISION,
			change_24h DOUBLE PRECISION,
			volume_24h DOUBLE PRECISION,
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
func (d *PostgresDB) LoadPortfolio(userID string) (*models.MPortfolioState, error) {
	p := &models.MPortfolioState{UserID: userID}

	row := d.DB.QueryRow(`
		SELECT id, name, total_value, total_gain_loss, total_gain_loss_percent
		FROM portfolios WHERE user_id = $1
	`, userID)
	if err := row.Scan(&p.ID, &p.Name, &p.TotalValue, &p.TotalGainLoss, &p.TotalGainLossPercent); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load portfolio for %s: %w", userID, err)
	}

	rows, err := d.DB.Query(`
		SELECT id, symbol, quantity, average_price, current_price, total_value, gain_loss, gain_loss_percent, allocation
		FROM holdings WHERE portfolio_id = $1 ORDER BY symbol
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
// Quantity and average price stay untouched; those columns belong to the
// trading flow.
func (d *PostgresDB) SaveValuation(p *models.MPortfolioState) error {
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
		SET total_value = $2, total_gain_loss = $3, total_gain_loss_percent = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.TotalValue, p.TotalGainLoss, p.TotalGainLossPercent, time.Now().UTC())
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		UPDATE holdings
		SET current_price = $2, total_value = $3, gain_loss = $4, gain_loss_percent = $5, allocation = $6, updated_at = $7
		WHERE id = $1
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
		_, err := stmt.Exec(h.ID, h.CurrentPrice, h.TotalValue, h.GainLoss, h.GainLossPercent, h.Allocation, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

// SaveAssetPrices appends price snapshots to the history table. Duplicate
// (symbol, timestamp) pairs are skipped.
func (d *PostgresDB) SaveAssetPrices(snaps []models.MTickSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO asset_prices (symbol, timestamp, price, change_24h, volume_24h)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, timestamp) DO NOTHING
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

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	d.Logger.Info("Cleaning up price history older than %d days (timestamp < %d)...", retentionDays, cutoff)

	if _, err := d.DB.Exec(`DELETE FROM asset_prices WHERE timestamp < $1`, cutoff); err != nil {
		d.Logger.Error("Cleanup asset_prices error: %v", err)
	}

	d.Logger.Info("Cleanup completed")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
