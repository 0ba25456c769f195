package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 4*time.Second, Backoff(1))
	assert.Equal(t, 8*time.Second, Backoff(2))
	assert.Equal(t, 64*time.Second, Backoff(5))
	assert.Equal(t, 5*time.Minute, Backoff(10))
	assert.Equal(t, 5*time.Minute, Backoff(100))
}

func TestTaskEnvelopeRoundTrip(t *testing.T) {
	task := &Task{
		ID:         "abc-123",
		Name:       "stamp_pdf",
		Args:       json.RawMessage(`{"doc_id":"deadbeef"}`),
		Attempts:   2,
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.Name, decoded.Name)
	assert.Equal(t, task.Attempts, decoded.Attempts)
	assert.JSONEq(t, string(task.Args), string(decoded.Args))
	assert.True(t, task.EnqueuedAt.Equal(decoded.EnqueuedAt))
}

func TestRetryPolicies(t *testing.T) {
	always := RetryAlways(5)
	assert.Equal(t, 5, always.MaxRetries)
	assert.Nil(t, always.RetryOn)

	none := NoRetry()
	assert.Zero(t, none.MaxRetries)

	sentinel := errors.New("row missing")
	selective := RetryPolicy{
		MaxRetries: 5,
		RetryOn:    func(err error) bool { return errors.Is(err, sentinel) },
	}
	assert.True(t, selective.RetryOn(sentinel))
	assert.False(t, selective.RetryOn(errors.New("other")))
}
