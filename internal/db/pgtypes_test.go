package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, in := range []string{"10.50", "0.01", "1250", "99999.99"} {
		d := decimal.RequireFromString(in)
		back, err := Decimal(Numeric(d))
		require.NoError(t, err)
		require.True(t, d.Equal(back), "%s != %s", d, back)
	}
}

func TestDecimalRejectsNull(t *testing.T) {
	_, err := Decimal(pgtype.Numeric{})
	require.Error(t, err)
	_, err = Decimal(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)
}

func TestUUIDHelpers(t *testing.T) {
	id := NewUUID()
	parsed, err := ToUUID(UUIDString(id))
	require.NoError(t, err)
	require.True(t, UUIDEqual(id, parsed))
	require.False(t, UUIDEqual(id, pgtype.UUID{}))

	_, err = ToUUID("not-a-uuid")
	require.Error(t, err)
	require.Empty(t, UUIDString(pgtype.UUID{}))
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}
	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsForeignKeyViolation(unique))
	require.True(t, IsForeignKeyViolation(fk))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/farm", migrateURL("postgres://u:p@localhost:5432/farm"))
	require.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	require.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
