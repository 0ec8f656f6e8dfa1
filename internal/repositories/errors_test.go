package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: apperr.ErrNotFound},
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, want: apperr.ErrConflict},
		{name: "postgres unique violation", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: apperr.ErrConflict},
		{name: "sqlite unique violation", err: errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"), want: apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.err, "user"), tt.want)
		})
	}

	assert.NoError(t, translateError(nil, "user"))

	other := &pgconn.PgError{Code: "23503"}
	got := translateError(other, "user")
	assert.Same(t, other, got)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
	assert.Equal(t, "alice", escapeLike("alice"))
}
