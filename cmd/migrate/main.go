package main

import (
	"errors"
	"flag"
	"os"
	"strconv"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

const usage = `usage: migrate [-db URL] <command>

commands:
  up           apply all pending migrations
  down         roll back every migration
  steps N      apply N migrations, or roll back when N is negative
  version      print the current schema version
  force V      mark the schema as version V without running anything`

func main() {
	dbURL := flag.String("db", "", "database URL; defaults to the database section of the checkout config")
	flag.Usage = func() { os.Stderr.WriteString(usage + "\n") }
	flag.Parse()

	logger := observability.InitLogger("info", observability.LogOutput("console", os.Stderr))
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	url := *dbURL
	if url == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load config")
		}
		url = cfg.Database.MigrateURL()
	}

	src, err := iofs.New(postgres.Migrations, "migrations")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}
	defer m.Close()

	if err := run(m, flag.Args(), logger); err != nil {
		logger.Error().Err(err).Str("command", flag.Arg(0)).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, args []string, logger zerolog.Logger) error {
	var err error
	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps", "force":
		if len(args) < 2 {
			return errors.New(args[0] + " needs a number")
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return convErr
		}
		if args[0] == "steps" {
			err = m.Steps(n)
		} else {
			err = m.Force(n)
		}
	case "version":
	default:
		return errors.New("unknown command " + strconv.Quote(args[0]))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info().Msg("No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	return nil
}
