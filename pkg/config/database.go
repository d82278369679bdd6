package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB holds the database connections
type DB struct {
	Postgres *gorm.DB
	Mongo    *mongo.Client
}

// InitDB initializes and returns the database connections. Connection pings
// retry with exponential backoff so the service survives a slow DB start.
func InitDB(cfg *Config, logger zerolog.Logger) (*DB, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, assuming environment variables are set")
	}

	if cfg.PostgresUrl == "" {
		return nil, fmt.Errorf("POSTGRES_CONN_STR environment variable not set")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable not set")
	}

	var postgresDB *gorm.DB
	err := withRetry(logger, "postgres connect", func() error {
		var err error
		postgresDB, err = initPostgres(cfg.PostgresUrl)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info().Msg("connected to PostgreSQL")

	var mongoClient *mongo.Client
	err = withRetry(logger, "mongo connect", func() error {
		var err error
		mongoClient, err = initMongo(cfg.MongoURI)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	logger.Info().Msg("connected to MongoDB")

	return &DB{
		Postgres: postgresDB,
		Mongo:    mongoClient,
	}, nil
}

func withRetry(logger zerolog.Logger, name string, operation func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Str("operation", name).Dur("next_attempt_in", next).Msg("operation failed, retrying")
	}
	return backoff.RetryNotify(operation, backoff.WithMaxRetries(bo, 5), notify)
}

func initPostgres(connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func initMongo(uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB(logger zerolog.Logger) {
	if db.Postgres != nil {
		if sqlDB, err := db.Postgres.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing PostgreSQL connection")
			}
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			logger.Error().Err(err).Msg("error closing MongoDB connection")
		}
	}
}
