package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

const usage = "usage: migrate-apply up | down [steps] | version"

func main() {
	if len(os.Args) < 2 {
		logging.Logger.Fatal(usage)
	}

	migrationsDir, err := filepath.Abs("migrations")
	if err != nil {
		logging.Logger.Fatal("failed to resolve migrations dir", zap.String("error", err.Error()))
	}

	migrator, err := migrate.New("file://"+filepath.ToSlash(migrationsDir), database.GetURL())
	if err != nil {
		logging.Logger.Fatal("failed to create migrator", zap.String("error", err.Error()))
	}

	defer migrator.Close()

	switch os.Args[1] {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-downSteps(os.Args[2:]))
	case "version":
	default:
		logging.Logger.Fatal(usage)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logging.Logger.Fatal("migration failed", zap.String("error", err.Error()))
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logging.Logger.Fatal("failed to read migration version", zap.String("error", err.Error()))
	}

	logging.Logger.Info("migration complete", zap.Uint("version", version), zap.Bool("dirty", dirty))
}

func downSteps(args []string) int {
	if len(args) == 0 {
		return 1
	}

	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		logging.Logger.Fatal("steps must be a positive integer", zap.String("steps", args[0]))
	}

	return steps
}
