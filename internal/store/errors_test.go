package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres check", &pgconn.PgError{Code: "23514"}, false},
		{"sqlite message", errors.New("constraint failed: UNIQUE constraint failed: source_reports.filename (2067)"), true},
		{"other", errors.New("disk I/O error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(eris.New("plain")))
}

func TestMarshalDetails(t *testing.T) {
	b, err := marshalDetails(nil)
	assert.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	b, err = marshalDetails(map[string]any{"n": 1})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))
}
