package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
)

// Config holds the export options.
type Config struct {
	SQLitePath string

	MySQLDSN      string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPass     string
	MySQLDatabase string

	BatchSize  int
	Clean      bool
	SkipVerify bool
	Verbose    bool

	ConfigPath string
}

// Load fills unset connection details from the yardwatch config file and
// validates the result.
func (c *Config) Load() error {
	if c.SQLitePath == "" || (c.MySQLDSN == "" && c.MySQLPass == "") {
		if err := c.loadFromConfigFile(); err != nil && c.SQLitePath == "" {
			return fmt.Errorf("--sqlite-path is required (or provide config.yaml): %w", err)
		}
	}
	if _, err := os.Stat(c.SQLitePath); err != nil {
		return fmt.Errorf("sqlite database %s: %w", c.SQLitePath, err)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	return nil
}

func (c *Config) loadFromConfigFile() error {
	v := viper.New()

	path := c.ConfigPath
	if path == "" {
		path = "config.yaml"
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".config", "yardwatch", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if c.SQLitePath == "" {
		c.SQLitePath = v.GetString("database.sqlite.path")
	}
	if c.MySQLDSN == "" && c.MySQLPass == "" && v.IsSet("database.mysql.host") {
		c.MySQLHost = v.GetString("database.mysql.host")
		if port := v.GetInt("database.mysql.port"); port != 0 {
			c.MySQLPort = port
		}
		c.MySQLUser = v.GetString("database.mysql.username")
		c.MySQLPass = v.GetString("database.mysql.password")
		c.MySQLDatabase = v.GetString("database.mysql.database")
	}
	return nil
}

// MySQLDSNString returns the DSN, built from components unless given
// directly. It is formatted the way the worker connects.
func (c *Config) MySQLDSNString() string {
	if c.MySQLDSN != "" {
		return c.MySQLDSN
	}
	return datastore.MySQLDSN(conf.MySQLConfig{
		Host:     c.MySQLHost,
		Port:     strconv.Itoa(c.MySQLPort),
		Username: c.MySQLUser,
		Password: c.MySQLPass,
		Database: c.MySQLDatabase,
	})
}

// SanitizedMySQLDSN masks the password for display.
func (c *Config) SanitizedMySQLDSN() string {
	dsn := c.MySQLDSNString()
	colon := strings.Index(dsn, ":")
	at := strings.LastIndex(dsn, "@")
	if colon != -1 && at > colon {
		return dsn[:colon+1] + "****" + dsn[at:]
	}
	return dsn
}
