package sqlutil

import (
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestValuesPlaceholders_ValidInputs_Success(t *testing.T) {
	assert.Equal(t, "($1)", ValuesPlaceholders(1, 1))
	assert.Equal(t, "($1,$2),($3,$4),($5,$6)", ValuesPlaceholders(2, 3))
	assert.Equal(t, "($1,$2,$3)", ValuesPlaceholders(3, 1))
}

func TestValuesPlaceholders_InvalidInputs_Panics(t *testing.T) {
	assert.Panics(t, func() {
		ValuesPlaceholders(0, 2)
	})
	assert.Panics(t, func() {
		ValuesPlaceholders(2, -1)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsUniqueViolation(fmt.Errorf("plain")))
	assert.False(t, IsUniqueViolation(nil))
}
