package database

import (
	"fmt"

	gormSqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSqliteDB открывает встроенную базу локального кеша вопросов.
// TranslateError включен, чтобы нарушение уникальности ключа приходило
// как gorm.ErrDuplicatedKey независимо от драйвера.
func NewSqliteDB(path string) (*gorm.DB, error) {
	if path == "" {
		path = "local_questions.db"
	}

	db, err := gorm.Open(gormSqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local question store at %s: %w", path, err)
	}

	// Кеш обслуживает один игровой поток; лишние соединения не нужны,
	// а sqlite при конкурентной записи легко ловит SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
