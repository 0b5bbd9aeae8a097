package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notipi/internal/adapter/driven/memory"
	sqliteadapter "github.com/ericfisherdev/notipi/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/notipi/internal/config"
	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestSender_ChannelFallbacks(t *testing.T) {
	msg := driven.Message{JobID: "job_1", Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi"}

	dev := &app{cfg: &config.Config{Env: "development", EmailDriver: "log"}}
	router, err := dev.sender()
	require.NoError(t, err)
	assert.NoError(t, router.Send(context.Background(), msg), "development logs unconfigured channels")

	prod := &app{cfg: &config.Config{Env: "production", EmailDriver: "log"}}
	router, err = prod.sender()
	require.NoError(t, err)
	assert.ErrorIs(t, router.Send(context.Background(), msg), driven.ErrPermanent)

	bad := &app{cfg: &config.Config{EmailDriver: "fax"}}
	_, err = bad.sender()
	assert.Error(t, err)
}

func TestCounterStoreSelection(t *testing.T) {
	assert.IsType(t, &memory.CounterStore{}, counterStore(&config.Config{CounterStore: "memory"}, nil))
	assert.IsType(t, &sqliteadapter.CounterRepo{}, counterStore(&config.Config{CounterStore: "sqlite"}, &sqliteadapter.DB{}))
}

func TestQueuePolicyFromConfig(t *testing.T) {
	a := &app{cfg: &config.Config{MaxAttempts: 4, RetentionCompleted: 10, RetentionFailed: 20}}
	p := a.queuePolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 10, p.Retention.CompletedCount)
	assert.Equal(t, 20, p.Retention.FailedCount)
}
