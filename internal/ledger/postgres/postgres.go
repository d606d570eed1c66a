// Package postgres is the ledger backed by a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fisse/internal/core"
	"fisse/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure interface conformance
var (
	_ ledger.Ledger        = (*Store)(nil)
	_ ledger.HistorySource = (*Store)(nil)
)

type Store struct {
	db *sql.DB
}

// Open connects to connStr and migrates the ledger schema.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrateUp(connStr); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrateUp(connStr string) error {
	migrateDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := pgxmigrate.WithInstance(migrateDB, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run ledger migrations: %w", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
	id, side, amount, category, description, date,
	template_id, item_id, period, recurring, cadence, created_at`

func scanTransaction(sc scanner) (*core.LedgerTransaction, error) {
	var (
		tx                                  core.LedgerTransaction
		side                                string
		templateID, itemID, period, cadence sql.NullString
	)
	if err := sc.Scan(
		&tx.ID, &side, &tx.Amount, &tx.Category, &tx.Description, &tx.Date,
		&templateID, &itemID, &period, &tx.Recurring, &cadence, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}
	tx.Side = core.Side(side)
	tx.TemplateID = templateID.String
	tx.ItemID = itemID.String
	tx.Period = core.PeriodKey(period.String)
	tx.Cadence = core.Cadence(cadence.String)
	return &tx, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) Create(ctx context.Context, tx core.LedgerTransaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	query := `
		INSERT INTO ledger_transactions
			(id, side, amount, category, description, date, template_id, item_id, period, recurring, cadence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID,
		string(tx.Side),
		tx.Amount,
		tx.Category,
		tx.Description,
		tx.Date,
		nullable(tx.TemplateID),
		nullable(tx.ItemID),
		nullable(string(tx.Period)),
		tx.Recurring,
		nullable(string(tx.Cadence)),
	)
	if err != nil {
		return "", fmt.Errorf("inserting transaction: %w", err)
	}
	return tx.ID, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	return nil
}

func (s *Store) FindByItem(ctx context.Context, period core.PeriodKey, itemID string) (*core.LedgerTransaction, error) {
	query := `SELECT ` + selectColumns + `
		FROM ledger_transactions
		WHERE period = $1 AND item_id = $2
		ORDER BY created_at
		LIMIT 1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, string(period), itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding transaction for item %s: %w", itemID, err)
	}
	return tx, nil
}

func (s *Store) ListLegacy(ctx context.Context) ([]core.LedgerTransaction, error) {
	query := `SELECT ` + selectColumns + `
		FROM ledger_transactions
		WHERE item_id IS NULL
		ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing legacy transactions: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}
