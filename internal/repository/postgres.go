package repository

import (
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/leadaging/internal/domain"
)

const postgresApplicationName = "leadaging"

// openPostgres opens the pro-tier store through lib/pq.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	return openDB("postgres", postgresDSN(cfg), cfg.ConnectTimeout)
}

// postgresDSN returns cfg.PostgresURL when set, otherwise a postgres:// URL
// assembled from the discrete fields. Credentials are URL-escaped so
// passwords with reserved characters survive.
func postgresDSN(cfg domain.RepositoryConfig) string {
	if cfg.PostgresURL != "" {
		return cfg.PostgresURL
	}

	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "leadaging"
	}
	sslMode := cfg.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", postgresApplicationName)
	if secs := connectTimeoutSeconds(cfg.ConnectTimeout); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + dbname,
		RawQuery: q.Encode(),
	}
	switch {
	case cfg.PostgresUser != "" && cfg.PostgresPassword != "":
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	case cfg.PostgresUser != "":
		u.User = url.User(cfg.PostgresUser)
	}
	return u.String()
}

// connectTimeoutSeconds rounds up; lib/pq only accepts whole seconds.
func connectTimeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
