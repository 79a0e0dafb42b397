package main

import (
	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func runMigrations(cfg Config, log logrus.FieldLogger, down bool) error {
	dsn, err := mysql.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return errors.Wrap(err, "parse mysql dsn")
	}
	dsn.MultiStatements = true

	m, err := migrate.New("file://"+cfg.MigrationsDir, "mysql://"+dsn.FormatDSN())
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	defer m.Close()

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("schema already up to date")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	version, dirty, _ := m.Version()
	log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
		"down":    down,
	}).Info("migrations applied")
	return nil
}
