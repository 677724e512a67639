package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

// Supported driver names
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	driver string
}

// Tx wraps sql.Tx with additional context
type Tx struct {
	*sql.Tx
	db *DB
}

// Config holds database connection configuration
type Config struct {
	Driver   string `toml:"driver" json:"driver"`
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port" json:"port"`
	User     string `toml:"user" json:"user"`
	Pass     string `toml:"pass" json:"pass"`
	Database string `toml:"database" json:"database"`

	// DSN is used as is when set. It is the database file for sqlite3.
	DSN string `toml:"dsn" json:"dsn"`
}

// Validate checks that the configuration names a supported driver and
// enough connection parameters to build a DSN
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
		if c.DSN == "" && (c.Host == "" || c.Database == "") {
			return fmt.Errorf("database host and database must be specified for %s", c.Driver)
		}
	case DriverSQLite:
		if c.DSN == "" {
			return fmt.Errorf("database dsn must be specified for sqlite3")
		}
	case "":
		return fmt.Errorf("database driver must be specified")
	default:
		return fmt.Errorf("unsupported database driver: %s (must be mysql, postgres, or sqlite3)", c.Driver)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 0 and 65535")
	}
	return nil
}

// Open creates a new database connection and verifies it
func Open(ctx context.Context, driverName, dsn string) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)

	switch driverName {
	case DriverPostgres:
		var connConfig *pgx.ConnConfig
		connConfig, err = pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		sqlDB = stdlib.OpenDB(*connConfig)
	default:
		sqlDB, err = sql.Open(driverName, dsn)
		if err != nil {
			return nil, err
		}
	}

	// One connection for the whole run. An in-memory sqlite database also
	// only exists on the connection that created it.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{
		DB:     sqlDB,
		driver: driverName,
	}, nil
}

// OpenWithConfig builds the DSN for config and opens it. Failures are
// reported as sink connectivity errors.
func OpenWithConfig(ctx context.Context, config Config) (*DB, error) {
	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", health.ErrSinkConnectivity, err)
	}

	db, err := Open(ctx, config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", health.ErrSinkConnectivity, config.Driver, err)
	}
	return db, nil
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// Begin starts a new transaction
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &Tx{
		Tx: tx,
		db: db,
	}, nil
}

// WithTransaction executes a function within a transaction
// Automatically commits on success, rolls back on error
func (db *DB) WithTransaction(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	// Make sure we make a best effort to rollback on panic
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// BuildDSN returns the driver-specific DSN for config
func BuildDSN(config Config) (string, error) {
	switch config.Driver {
	case DriverMySQL:
		return mysqlDSN(config)
	case DriverPostgres:
		return postgresDSN(config), nil
	case DriverSQLite:
		if config.DSN == "" {
			return "", errors.New("sqlite3 requires a dsn")
		}
		return config.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// mysqlDSN always decodes DATETIME columns into time.Time in UTC
func mysqlDSN(config Config) (string, error) {
	var cfg *mysql.Config
	if config.DSN != "" {
		parsed, err := mysql.ParseDSN(config.DSN)
		if err != nil {
			return "", err
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = config.User
		cfg.Passwd = config.Pass
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(portOrDefault(config.Port, 3306)))
		cfg.DBName = config.Database
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	return cfg.FormatDSN(), nil
}

func postgresDSN(config Config) string {
	if config.DSN != "" {
		return config.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(config.User, config.Pass),
		Host:   net.JoinHostPort(config.Host, strconv.Itoa(portOrDefault(config.Port, 5432))),
		Path:   "/" + config.Database,
	}
	return u.String()
}

func portOrDefault(port, fallback int) int {
	if port == 0 {
		return fallback
	}
	return port
}

// placeholder returns the appropriate SQL placeholder for the given driver.
func placeholder(driver string, n int) string {
	switch driver {
	case DriverPostgres:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

// Error classification functions

// IsConnectionError reports whether err means the connection to the sink
// is unusable, as opposed to the sink rejecting a statement
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify wraps err in ErrSinkConnectivity when the connection was lost and
// in fallback otherwise
func classify(err error, fallback error, action string) error {
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %s: %w", health.ErrSinkConnectivity, action, err)
	}
	return fmt.Errorf("%w: %s: %w", fallback, action, err)
}
