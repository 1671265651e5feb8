package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfirmDeadline_Strict_PanicsWithoutDeadline(t *testing.T) {
	c := New(nil, true)
	assert.Panics(t, func() {
		c.confirmDeadline(context.Background(), "Exec")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	assert.NotPanics(t, func() {
		c.confirmDeadline(ctx, "Exec")
	})
}

func TestConfirmDeadline_NotStrict_CountsMissingDeadlines(t *testing.T) {
	c := New(nil, false)
	before := c.missing.Get()
	c.confirmDeadline(context.Background(), "Query")
	assert.Equal(t, before+1, c.missing.Get())
}
