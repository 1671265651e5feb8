package now

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ts = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestNow_NoValueInContext_ReturnsWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestNow_WithTime_ReturnsFixedTime(t *testing.T) {
	ctx := WithTime(context.Background(), ts)
	assert.Equal(t, ts, Now(ctx))
	assert.Equal(t, ts, Now(ctx))
}

func TestNow_WithStepper_Advances(t *testing.T) {
	s := &Stepper{Start: ts, Step: time.Second}
	ctx := WithProvider(context.Background(), s.Now)
	assert.Equal(t, ts, Now(ctx))
	assert.Equal(t, ts.Add(time.Second), Now(ctx))
}

func TestNow_UnknownValue_Panics(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKey, "not a time")
	assert.Panics(t, func() {
		Now(ctx)
	})
}
