package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL combines a base connection URL with a database name.
// When the name is empty the base URL is returned unchanged. sslmode=disable is
// added unless the URL already sets an sslmode.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		// Leave malformed URLs for pgxpool.ParseConfig to report
		return baseURL
	}

	parsed.Path = "/" + databaseName

	query := parsed.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}
