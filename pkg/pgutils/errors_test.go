package pgutils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	pgUnique := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "users_email_key"}
	pqFK := &pq.Error{Code: pq.ErrorCode(CodeForeignKeyViolation), Constraint: "payments_user_id_fkey"}

	tests := []struct {
		name   string
		err    error
		unique bool
		fk     bool
		check  bool
		state  string
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("connection reset")},
		{name: "pgx unique", err: pgUnique, unique: true, state: CodeUniqueViolation},
		{name: "wrapped pgx unique", err: fmt.Errorf("insert user: %w", pgUnique), unique: true, state: CodeUniqueViolation},
		{name: "lib/pq foreign key", err: pqFK, fk: true, state: CodeForeignKeyViolation},
		{name: "flattened check", err: errors.New("ERROR: new row violates check constraint (SQLSTATE 23514)"), check: true},
		{name: "bare code is not enough", err: errors.New("order 23505 shipped")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.fk, IsForeignKeyViolation(tt.err))
			assert.Equal(t, tt.check, IsCheckViolation(tt.err))
			assert.Equal(t, tt.state, SQLState(tt.err))
		})
	}
}

func TestIsUniqueViolationOn(t *testing.T) {
	email := fmt.Errorf("update: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "users_email_key"})
	token := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "idx_users_confirmation_token"}

	assert.True(t, IsUniqueViolationOn(email, "users_email_key"))
	assert.False(t, IsUniqueViolationOn(token, "users_email_key"))
	assert.False(t, IsUniqueViolationOn(errors.New("SQLSTATE 23505"), "users_email_key"))
	assert.Equal(t, "idx_users_confirmation_token", ConstraintName(token))
	assert.Equal(t, "payments_user_id_fkey", ConstraintName(&pq.Error{Constraint: "payments_user_id_fkey"}))
}
