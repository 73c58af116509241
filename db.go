package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	roleViewer = "viewer"
	roleAdmin  = "admin"
)

type UserRow struct {
	ID           int64          `db:"id"`
	Username     string         `db:"username"`
	PasswordHash string         `db:"password_hash"`
	Role         string         `db:"role"`
	CreatedAt    time.Time      `db:"created_at"`
	CreatedIP    sql.NullString `db:"created_ip"`
	LastLoginIP  sql.NullString `db:"last_login_ip"`
}

type SongRow struct {
	ID              int64           `db:"id"`
	Filename        string          `db:"filename"` // stored filename on disk
	Title           string          `db:"title"`
	Artist          string          `db:"artist"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	CreatedAt       time.Time       `db:"created_at"`
}

type BackgroundImageRow struct {
	ID        int64     `db:"id"`
	Filename  string    `db:"filename"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

type SongLoveRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	SongID    int64     `db:"song_id"`
	CreatedAt time.Time `db:"created_at"`
}

type AppSettingsRow struct {
	ID                   int64 `db:"id"`
	AutoChangeBackground bool  `db:"auto_change_background"`
	AllowRegistration    bool  `db:"allow_registration"`
}

// connOrTx lets query helpers run on either a connection pool or an open
// transaction.
type connOrTx interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func connectDB(cfg *Config) (*sqlx.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = cfg.Database.Host + ":" + cfg.Database.Port
		mc.User = cfg.Database.User
		mc.Passwd = cfg.Database.Password
		mc.DBName = cfg.Database.Name
		mc.ParseTime = true
		mdb, err := sqlx.Open("mysql", mc.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("error open mysql database: %w", err)
		}
		mdb.SetMaxOpenConns(10)
		return mdb, nil
	case "sqlite":
		sdb, err := sqlx.Open("sqlite", cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("error open sqlite database %s: %w", cfg.Database.Path, err)
		}
		// single writer, the usual arrangement for embedded sqlite
		sdb.SetMaxOpenConns(1)
		return sdb, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer',
		created_at TIMESTAMP NOT NULL,
		created_ip TEXT,
		last_login_ip TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		duration_seconds REAL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS background_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS song_loves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		song_id INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, song_id)
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		auto_change_background BOOLEAN NOT NULL DEFAULT 0,
		allow_registration BOOLEAN NOT NULL DEFAULT 0
	)`,
}

var schemaMySQL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'viewer',
		created_at DATETIME(6) NOT NULL,
		created_ip VARCHAR(45),
		last_login_ip VARCHAR(45)
	)`,
	`CREATE TABLE IF NOT EXISTS songs (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(512) NOT NULL UNIQUE,
		title VARCHAR(512) NOT NULL DEFAULT '',
		artist VARCHAR(512) NOT NULL DEFAULT '',
		duration_seconds DOUBLE,
		created_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS background_images (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(512) NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS song_loves (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		song_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY unique_user_song_love (user_id, song_id)
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		auto_change_background BOOLEAN NOT NULL DEFAULT FALSE,
		allow_registration BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

func initSchema(ctx context.Context, db *sqlx.DB, driver string) error {
	stmts := schemaSQLite
	if driver == "mysql" {
		stmts = schemaMySQL
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error create schema: %w", err)
		}
	}
	return nil
}

// isDuplicateEntryErr reports whether err is a unique-constraint violation,
// for either driver.
func isDuplicateEntryErr(err error) bool {
	var merr *mysql.MySQLError
	if errors.As(err, &merr) && merr.Number == 1062 {
		return true
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
