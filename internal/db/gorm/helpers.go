// Package gorm provides GORM-based database operations for reflectra.
package gorm

import (
	"database/sql"
	"net/http"
	"strconv"
)

// nullString creates a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64 creates a sql.NullInt64 from an optional id.
func nullInt64(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}

// ParseInt64Param parses an int64 query parameter, returning 0 when absent or invalid.
func ParseInt64Param(r *http.Request, name string) int64 {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
