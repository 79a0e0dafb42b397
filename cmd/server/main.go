package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	log := newLogger()

	app := &cli.App{
		Name:  "storefront",
		Usage: "cart and checkout service for the clothing storefront",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP and gRPC servers",
				Action: func(c *cli.Context) error {
					cfg, err := configure(log)
					if err != nil {
						return err
					}
					return serve(c.Context, cfg, log)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll back every migration"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := configure(log)
					if err != nil {
						return err
					}
					return runMigrations(cfg, log, c.Bool("down"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("storefront exited")
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	return log
}

func configure(log *logrus.Logger) (Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Config{}, err
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return Config{}, errors.Wrap(err, "STOREFRONT_LOG_LEVEL")
	}
	log.Level = lvl
	return cfg, nil
}
