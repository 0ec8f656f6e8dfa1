package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the SQLSTATE postgres reports for a unique index hit
const pgUniqueViolation = "23505"

// translateError maps driver errors onto the apperr kinds. subject names the
// record for the message, e.g. "user 3f0c...".
func translateError(err error, subject string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, subject)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists: %w", apperr.ErrConflict, subject, err)
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite drivers only expose the constraint through the message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// normalizeQuery trims and lower-cases a search query
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in user input match literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
