package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPgErrorClassification(t *testing.T) {
	wrapped := func(code string) error {
		return fmt.Errorf("uploads: insert: %w", &pgconn.PgError{Code: code})
	}
	require.True(t, IsSerializationFailure(wrapped("40001")))
	require.True(t, IsSerializationFailure(wrapped("40P01")))
	require.False(t, IsSerializationFailure(wrapped("23505")))
	require.False(t, IsSerializationFailure(nil))

	require.True(t, IsUniqueViolation(wrapped("23505")))
	require.False(t, IsUniqueViolation(fmt.Errorf("plain")))
}
