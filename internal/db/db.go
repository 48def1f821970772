package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"listings/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	sqliteDriverName = "sqlite3_listings"
)

func init() {
	// встроенный lower в sqlite понижает только ASCII, фильтры по "Łódź" без этого не работают
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

// unicodeLower заменяет lower() в sqlite; NULL и числа возвращает как есть
func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	}
	return v
}

// Open открывает соединение с БД выбранным драйвером
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is empty (check your .env)")
		}
		dialector = postgres.Open(dsn)
	case DriverSQLite, "":
		if dsn == "" {
			dsn = "listings.db"
		}
		// без foreign_keys sqlite не делает каскадное удаление
		dialector = &sqlite.Dialector{DriverName: sqliteDriverName, DSN: dsn + sqliteParams(dsn)}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// у каждого соединения своя in-memory база, держим одно
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate создаёт/обновляет таблицы listings и images
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Listing{}, &models.Image{})
}

func sqliteParams(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&_foreign_keys=on"
	}
	return "?_foreign_keys=on"
}
