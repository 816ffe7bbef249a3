package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableTxError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, true},
		{"wrapped deadlock", fmt.Errorf("insert outbox entry: %w", &pgconn.PgError{Code: codeDeadlockDetected}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableTxError(tt.err))
		})
	}
}
