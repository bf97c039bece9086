package repo

import (
	"database/sql"
	"encoding/json"

	"concord/internal/domain"
)

// Repo wraps all SQLite access. Mutating methods that take a *sql.Tx are
// meant to run inside an engine transaction; read methods hit the DB
// directly.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = domain.ErrNotFound

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// jsonText marshals v, falling back to the given literal on nil or error.
func jsonText(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}

func fromJSON[T any](raw string) T {
	var out T
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out
}
