package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDrain_ClosesAfterPipelineStops(t *testing.T) {
	done := make(chan struct{})
	close(done)

	var order []string
	closers := []closer{
		{"kafka writer", func() error { order = append(order, "kafka"); return nil }},
		{"redis", func() error { order = append(order, "redis"); return errors.New("already closed") }},
		{"alert store", func() error { order = append(order, "store"); return nil }},
	}

	ok := drain(context.Background(), done, discardLogger(), closers)

	assert.True(t, ok)
	assert.Equal(t, []string{"kafka", "redis", "store"}, order, "a close error does not stop later closers")
}

func TestDrain_TimeoutLeavesResourcesOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	closed := false
	closers := []closer{{"alert store", func() error { closed = true; return nil }}}

	ok := drain(ctx, make(chan struct{}), discardLogger(), closers)

	assert.False(t, ok)
	assert.False(t, closed, "store stays open while a pass may still be saving")
}

func TestReadiness_ReportsFirstFailingCheck(t *testing.T) {
	var r readiness
	r.add("store", func(context.Context) error { return nil })
	r.add("redis", func(context.Context) error { return errors.New("connection refused") })

	err := r.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Equal(t, "redis: connection refused", err.Error())

	var empty readiness
	assert.NoError(t, empty.CheckReadiness(context.Background()))
}
