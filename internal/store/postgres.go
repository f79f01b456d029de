package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres is the production Store implementation.
type Postgres struct {
	db       *sql.DB
	users    *pgUsers
	sessions *pgSessions
	messages *pgMessages
	reports  *pgReports
}

// OpenPostgres connects to PostgreSQL, applies pending migrations, and
// returns a ready Store.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{
		db:       db,
		users:    &pgUsers{db: db},
		sessions: &pgSessions{db: db},
		messages: &pgMessages{db: db},
		reports:  &pgReports{db: db},
	}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func (p *Postgres) Users() Users       { return p.users }
func (p *Postgres) Sessions() Sessions { return p.sessions }
func (p *Postgres) Messages() Messages { return p.messages }
func (p *Postgres) Reports() Reports   { return p.reports }

// Close closes the underlying database handle.
func (p *Postgres) Close() error { return p.db.Close() }
