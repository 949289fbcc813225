package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestIsUniqueViolationPostgres(t *testing.T) {
	err := fmt.Errorf("insert cart: %w", &pgconn.PgError{Code: "23505", ConstraintName: "carts_owner_key"})

	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "carts_owner_key"))
	require.False(t, IsUniqueViolation(err, "cart_items_cart_product_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:unique_violation?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE owners (owner_type TEXT, owner_id TEXT, UNIQUE (owner_type, owner_id))`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO owners VALUES ('guest', 'a')`).Error)

	dupErr := conn.Exec(`INSERT INTO owners VALUES ('guest', 'a')`).Error
	require.Error(t, dupErr)
	require.True(t, IsUniqueViolation(dupErr, ""))
	require.True(t, IsUniqueViolation(dupErr, "owners.owner_type"))
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	require.False(t, IsUniqueViolation(nil, ""))
	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	require.True(t, IsNotFound(fmt.Errorf("lookup: %w", gorm.ErrRecordNotFound)))
}
