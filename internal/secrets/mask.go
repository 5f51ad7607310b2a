package secrets

import (
	"net/url"
	"strings"
)

// Mask returns a masked version of a secret string for safe logging.
// Returns the first 4 characters followed by "..." if the secret is longer than 8 chars,
// otherwise returns "***" to avoid exposing short secrets.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..."
}

// MaskDSN masks credentials in a database connection string. Postgres URLs
// keep the user and lose the password; SQLite paths carry no credentials and
// are returned unchanged apart from a masked "_auth_pass" query value.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if !strings.Contains(dsn, "://") {
		return maskQuery(dsn)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxx")
		}
	}
	if q := u.Query(); q.Get("password") != "" {
		q.Set("password", "xxx")
		u.RawQuery = q.Encode()
	}
	return strings.Replace(u.String(), ":xxx@", ":***@", 1)
}

// maskQuery hides the password parameter of a file DSN such as
// "file:companion.db?_auth_pass=secret".
func maskQuery(dsn string) string {
	path, rawQuery, found := strings.Cut(dsn, "?")
	if !found {
		return dsn
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil || q.Get("_auth_pass") == "" {
		return dsn
	}
	q.Set("_auth_pass", "***")
	return path + "?" + q.Encode()
}
