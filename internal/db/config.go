// Package db wraps pgxpool with the connection-string parsing, retrying
// startup, and health-check conventions this codebase already uses for
// its database layer, generalized to serve both the meta catalog and
// every tenant schema through one shared pool.
package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the pool's connection and sizing parameters.
type Config struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
	SSLMode         string
}

// ConfigFromURL parses a postgres:// connection string plus pool-sizing
// overrides into a Config.
func ConfigFromURL(databaseURL string, maxConns, minConns int32, connectTimeout time.Duration, development bool) (*Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to split host:port: %w", err)
	}
	portInt, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %w", err)
	}

	_, database, found := strings.Cut(u.Path, "/")
	if !found || database == "" {
		return nil, fmt.Errorf("database name is required in URL")
	}

	username := u.User.Username()
	password, _ := u.User.Password()

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		if development {
			sslMode = "disable"
		} else {
			sslMode = "prefer"
		}
	}

	return &Config{
		Host:            host,
		Port:            portInt,
		Database:        database,
		Username:        username,
		Password:        password,
		MaxConns:        maxConns,
		MinConns:        minConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  connectTimeout,
		MaxRetries:      5,
		RetryInterval:   2 * time.Second,
		SSLMode:         sslMode,
	}, nil
}

// ConnectionString renders the config back into a pgx-compatible DSN.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}
