package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the optional backing stores. Either handle may be nil when
// the deployment does not use it.
type Database struct {
	Postgres *gorm.DB
	MongoDB  *mongo.Database
	log      *zap.Logger
}

func New(log *zap.Logger) *Database {
	return &Database{log: log}
}

func (db *Database) ConnectPostgres(url string) error {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	pg, err := gorm.Open(postgres.Open(url), config)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := pg.DB()
	if err != nil {
		return err
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.log.Info("connected to PostgreSQL")
	db.Postgres = pg
	return nil
}

func (db *Database) ConnectMongo(url, dbName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db.log.Info("connected to MongoDB", zap.String("database", dbName))
	db.MongoDB = client.Database(dbName)
	return nil
}

// AutoMigrate runs gorm migrations for the given models when PostgreSQL is connected.
func (db *Database) AutoMigrate(models ...interface{}) error {
	if db.Postgres == nil {
		return nil
	}
	return db.Postgres.AutoMigrate(models...)
}

// Ping checks every connected store.
func (db *Database) Ping(ctx context.Context) error {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if db.MongoDB != nil {
		if err := db.MongoDB.Client().Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}

func (db *Database) Close() error {
	if db.Postgres != nil {
		if sqlDB, err := db.Postgres.DB(); err == nil {
			sqlDB.Close()
		}
	}

	if db.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.MongoDB.Client().Disconnect(ctx)
	}

	return nil
}
