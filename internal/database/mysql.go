package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OTP and session expiries are compared as instants, so timestamps are read back in UTC
// regardless of the host zone.
var mysqlDefaults = map[string]string{
	"charset":   "utf8mb4",
	"loc":       "UTC",
	"parseTime": "true",
	"timeout":   "10s",
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	user := cfg.User
	if cfg.Password != "" {
		user = cfg.User + ":" + cfg.Password
	}

	options := mergeOptions(mysqlDefaults, cfg.Options)
	pairs := make([]string, 0, len(options))
	for _, key := range sortedKeys(options) {
		pairs = append(pairs, key+"="+options[key])
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", user, host, port, cfg.Name, strings.Join(pairs, "&")), nil
}
