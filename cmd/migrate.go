package main

import (
	"context"
	"fmt"
	"time"

	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/pkg/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the cart table and receipt indexes",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db := database.New(logger)
	defer db.Close()

	if cfg.Checkout.StorageDriver == "postgres" {
		if err := db.ConnectPostgres(cfg.Database.PostgresURL); err != nil {
			return err
		}
		if err := db.AutoMigrate(&models.CartRecord{}); err != nil {
			return fmt.Errorf("failed to migrate cart table: %w", err)
		}
		logger.Info("migrated cart table")
	}

	if cfg.Checkout.ArchiveReceipts && cfg.Database.MongoURL != "" {
		if err := db.ConnectMongo(cfg.Database.MongoURL, cfg.Database.MongoDBName); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := repositories.EnsureReceiptIndexes(ctx, db.MongoDB); err != nil {
			return fmt.Errorf("failed to create receipt indexes: %w", err)
		}
		logger.Info("created receipt indexes")
	}
	return nil
}
