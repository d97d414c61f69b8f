package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func connectSQLite(path string, config *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path must not be empty")
	}

	db, err := gorm.Open(sqlite.Open(path), config)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}
