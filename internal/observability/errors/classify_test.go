package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyNil(t *testing.T) {
	assert.Empty(t, Classify(nil))
}

func TestClassifyUnwrapsToInnermostType(t *testing.T) {
	inner := &pgconn.ConnectError{}
	wrapped := fmt.Errorf("reserve delivery: %w", inner)

	assert.Equal(t, "pgconn_connecterror", Classify(wrapped))
}

func TestClassifyPgErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{name: "unique violation", code: pgerrcode.UniqueViolation, want: "pg_unique_violation"},
		{name: "foreign key violation", code: pgerrcode.ForeignKeyViolation, want: "pg_constraint_violation"},
		{name: "connection failure", code: pgerrcode.ConnectionFailure, want: "pg_connection"},
		{name: "deadlock", code: pgerrcode.DeadlockDetected, want: "pg_transaction_rollback"},
		{name: "unrecognized code", code: "XX000", want: "pg_XX000"},
		{name: "missing code", code: "", want: "pg_unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("insert delivery: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}
