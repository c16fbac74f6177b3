package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	coredatabase "github.com/m3rciful/captionrelay/core/database"
	"github.com/m3rciful/captionrelay/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the database is disabled.
type Result struct {
	DB *sqlx.DB
}

// Close releases the infrastructure held by r.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and, when the database is enabled, connects to it
// and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	dbCfg := opts.Config.Database
	if !dbCfg.Enabled {
		return &Result{}, nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}
