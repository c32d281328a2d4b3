package main

import (
	"flag"
	"os"

	"whatsgate/internal/database"

	"github.com/sirupsen/logrus"
)

// migrate applies the full schema for one tenant prefix. The DDL is
// idempotent, so running it against an existing database is safe.
func main() {
	dbPath := flag.String("db", "./whatsgate.db", "path to the database file")
	prefix := flag.String("prefix", "wa", "table prefix for this tenant")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	db, err := database.New(*dbPath, *prefix)
	if err != nil {
		logger.WithError(err).Error("Migration failed")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	logger.WithFields(logrus.Fields{
		"db":     *dbPath,
		"prefix": *prefix,
	}).Info("Schema applied")
}
