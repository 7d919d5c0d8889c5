package jobsup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSupervisor_RunsTickAndTracksCount(t *testing.T) {
	var calls int64
	sup := NewSupervisor("test", 10*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, nil)

	sup.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	sup.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
	assert.False(t, sup.StatusSnapshot().Running)
}

func TestSupervisor_RecordsLastError(t *testing.T) {
	sup := NewSupervisor("test", 5*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) error {
		return errors.New("boom")
	}, nil)

	sup.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	sup.Stop()

	assert.Equal(t, "boom", sup.StatusSnapshot().LastError)
}

func TestSupervisor_StopTakesEffectWithinOneQuantum(t *testing.T) {
	sup := NewSupervisor("test", time.Hour, 5*time.Millisecond, func(ctx context.Context) error {
		return nil
	}, nil)

	sup.Start(context.Background())
	start := time.Now()
	sup.Stop()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
