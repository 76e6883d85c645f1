package main

import (
	"context"
	"log"

	"github.com/sirupsen/logrus"

	"freightflow/audit"
	"freightflow/auth"
	"freightflow/config"
	"freightflow/db"
	"freightflow/notify"
	"freightflow/store"
	"freightflow/subscription"
	"freightflow/workflow"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap configuration: %v", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	entityStore := store.NewPGStore(pool)
	auditLogger := audit.NewLogger(entityStore)
	dispatcher := notify.NewDispatcher(entityStore, logger)
	catalog := workflow.DefaultCatalog()
	engine := workflow.NewEngine(entityStore, catalog, auditLogger, dispatcher, logger)
	subscriptions := subscription.NewService(entityStore, engine, auditLogger, dispatcher, logger)
	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	logger.WithFields(logrus.Fields{
		"catalog_kinds": len(catalog.Kinds()),
		"engine":        engine != nil,
		"subscriptions": subscriptions != nil,
		"auth":          authService != nil,
	}).Info("workflow core ready")
}
