// Package datastore is the relational storage layer: cameras, zones,
// recordings and incidents, accessed through gorm on SQLite, MySQL or
// PostgreSQL.
package datastore

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// Store owns the database handle.
type Store struct {
	DB      *gorm.DB
	Dialect string
	log     logger.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(settings *conf.DatabaseSettings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	dialector, err := dialectorFor(settings)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, settings.SlowQueryThreshold),
	})
	if err != nil {
		log.Error("failed to open database",
			logger.String("type", settings.Type),
			logger.Error(err))
		return nil, dbError(fmt.Errorf("failed to open %s database: %w", settings.Type, err), "open")
	}

	store := &Store{DB: db, Dialect: settings.Type, log: log}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info("database opened", logger.String("type", settings.Type))
	return store, nil
}

// NewStore wraps an existing connection. Used by tests.
func NewStore(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{DB: db, Dialect: db.Dialector.Name(), log: log}
}

func dialectorFor(settings *conf.DatabaseSettings) (gorm.Dialector, error) {
	switch settings.Type {
	case conf.DatabaseSQLite:
		if dir := filepath.Dir(settings.SQLite.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, dbError(fmt.Errorf("creating database directory: %w", err), "open")
			}
		}
		return sqlite.Open(settings.SQLite.Path + "?_foreign_keys=on&_busy_timeout=5000"), nil
	case conf.DatabaseMySQL:
		return mysql.Open(MySQLDSN(settings.MySQL)), nil
	case conf.DatabasePostgres:
		p := settings.Postgres
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			p.Host, p.Port, p.Username, p.Password, p.Database, p.SSLMode)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", settings.Type)
	}
}

// mysqlTimeout bounds connecting and each read or write.
const mysqlTimeout = 30 * time.Second

// MySQLDSN formats a driver DSN with escaped credentials. Times are read and
// written in UTC so incident timestamps keep UTC wall time on the server.
func MySQLDSN(m conf.MySQLConfig) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = m.Username
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(m.Host, m.Port)
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = mysqlTimeout
	cfg.ReadTimeout = mysqlTimeout
	cfg.WriteTimeout = mysqlTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Migrate creates or updates all tables.
func (s *Store) Migrate() error {
	if err := s.DB.AutoMigrate(Models()...); err != nil {
		return dbError(fmt.Errorf("auto-migrate: %w", err), "migrate")
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Catalog returns the read/lifecycle repository.
func (s *Store) Catalog() Catalog {
	return NewCatalog(s.DB)
}

// Incidents returns the incident repository.
func (s *Store) Incidents() IncidentRepository {
	return NewIncidentRepository(s.DB)
}
