package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"BucketDash/model"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrUnknownDB      = 1049
)

// MySQLConfig carries the connection pieces of config.Config the repository needs.
type MySQLConfig struct {
	DSN string
	// ServerDSN connects without selecting a database; used to create it on first start.
	ServerDSN string
	DBName    string
}

// autoMigrateAll migrates all database models.
func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.FileRecord{},
		&model.Profile{},
		&model.FolderDeleteTask{},
	)
}

// OpenMySQL opens the metadata database, creating it when missing, and migrates the schema.
func OpenMySQL(cfg MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormMysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil && isUnknownDatabaseError(err) && cfg.ServerDSN != "" {
		if createErr := ensureMySQLDatabase(cfg.ServerDSN, cfg.DBName); createErr != nil {
			return nil, fmt.Errorf("create database %s: %w", cfg.DBName, createErr)
		}
		db, err = gorm.Open(gormMysql.Open(cfg.DSN), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("db", cfg.DBName).Msg("mysql ready")
	return db, nil
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrUnknownDB
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return false
}

func ensureMySQLDatabase(serverDSN, dbName string) error {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return errors.New("empty database name")
	}
	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}
	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
