package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/logger"
)

// RunMigrations applies the pending *.up.sql files from cfg.MigrationsDir.
// The database must already be reachable (see Connect).
func RunMigrations(cfg coreconfig.DatabaseConfig) error {
	dir, err := resolveDir(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	files := listMigrationFiles(dir)
	logResolved(dir, files)

	m, err := migrate.New("file://"+dir, cfg.URL())
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return fmt.Errorf("migration execution failed: %w", err)
	}
	to, _, _ := m.Version()

	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", countApplied(files, uint64(from), uint64(to))),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func logResolved(dir string, files []string) {
	attrs := []any{
		slog.String("event", "resolve"),
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
	}
	if preview, truncated := logger.SummarizeStrings(files, 6); preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview), slog.Bool("files_truncated", truncated))
	}
	logger.MIG.Debug("migrations resolved", attrs...)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(cwd, dir), nil
}

func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

func countApplied(files []string, from, to uint64) int {
	if to <= from {
		return 0
	}
	c := 0
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			c++
		}
	}
	return c
}
