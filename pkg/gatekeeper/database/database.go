package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// defaultMongoDatabase is used when a mongodb URL carries no database path.
const defaultMongoDatabase = "gatekeeper"

// Connect opens a relational database. DSNs starting with postgres:// or
// postgresql:// use PostgreSQL, anything else is treated as a SQLite path.
// Driver errors are translated so unique violations surface as
// gorm.ErrDuplicatedKey.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	if isPostgres(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// Open returns the user store selected by the DSN scheme together with a
// function releasing its resources. Relational stores are auto-migrated.
func Open(ctx context.Context, dsn string) (UserStore, func() error, error) {
	if isMongo(dsn) {
		return openMongo(ctx, dsn)
	}

	db, err := Connect(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return NewGormStore(db), sqlDB.Close, nil
}

func openMongo(ctx context.Context, dsn string) (UserStore, func() error, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	store, err := NewMongoStore(ctx, client.Database(mongoDatabaseName(dsn)))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	closer := func() error {
		return client.Disconnect(context.Background())
	}
	return store, closer, nil
}

func mongoDatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func isMongo(dsn string) bool {
	return strings.HasPrefix(dsn, "mongodb://") || strings.HasPrefix(dsn, "mongodb+srv://")
}
