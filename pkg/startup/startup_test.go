package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestRunner_StartsInDependencyOrder(t *testing.T) {
	var started []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			started = append(started, name)
			return nil
		}
	}

	r := NewRunner(testLogger(), 1)
	r.Add(Func{Name: "http", Requires: []string{"database", "redis"}, OnStart: record("http")})
	r.Add(Func{Name: "database", OnStart: record("database")})
	r.Add(Func{Name: "redis", OnStart: record("redis")})

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, []string{"database", "redis", "http"}, started)
	assert.Equal(t, StatusStarted, r.Status("http"))
}

func TestRunner_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	r := NewRunner(testLogger(), 3)
	r.unit = time.Millisecond
	r.Add(Func{Name: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestRunner_GivesUp(t *testing.T) {
	r := NewRunner(testLogger(), 2)
	r.unit = time.Millisecond
	r.Add(Func{Name: "kafka", OnStart: func(context.Context) error {
		return errors.New("no brokers")
	}})

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
	assert.Equal(t, StatusFailed, r.Status("kafka"))
}

func TestRunner_UnknownDependency(t *testing.T) {
	r := NewRunner(testLogger(), 1)
	r.Add(Func{Name: "http", Requires: []string{"missing"}})

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRunner_StopReverseOrder(t *testing.T) {
	var stopped []string
	stop := func(name string) func(context.Context) error {
		return func(context.Context) error {
			stopped = append(stopped, name)
			return nil
		}
	}

	r := NewRunner(testLogger(), 1)
	r.Add(Func{Name: "database", OnStop: stop("database")})
	r.Add(Func{Name: "http", Requires: []string{"database"}, OnStop: stop("http")})

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, []string{"http", "database"}, stopped)
	assert.Equal(t, StatusStopped, r.Status("database"))
}
