package crmsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItem(t *testing.T) *QueueItem {
	t.Helper()
	item, err := NewQueueItem("user", "u-1", OperationCreate, TargetZohoCRM, EntityLeads, json.RawMessage(`{"last_name":"Doe","email":"doe@example.com"}`))
	require.NoError(t, err)
	return item
}

func TestNewQueueItem(t *testing.T) {
	item := newTestItem(t)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.AttemptCount)
	assert.True(t, item.IsDue(time.Now()))

	_, err := NewQueueItem("user", "u-1", Operation("upsert"), TargetZohoCRM, EntityLeads, nil)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = NewQueueItem("", "u-1", OperationCreate, TargetZohoCRM, EntityLeads, nil)
	assert.ErrorIs(t, err, ErrMissingEntity)

	_, err = NewQueueItem("user", "u-1", OperationCreate, "", EntityLeads, nil)
	assert.ErrorIs(t, err, ErrMissingTarget)

	item, err = NewQueueItem("user", "u-1", OperationDelete, TargetZohoCRM, EntityLeads, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(item.RequestPayload))
}

func TestQueueItem_MarkFailed_BackoffAndTerminal(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: time.Minute, MaxDelay: 5 * time.Minute, MaxAttempts: 5}
	item := newTestItem(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var gaps []time.Duration
	for i := 1; i <= 4; i++ {
		item.Claim(now)
		item.MarkFailed("crm unavailable", json.RawMessage(`{"status":503}`), policy, now)
		assert.Equal(t, StatusRetrying, item.Status, "attempt %d", i)
		assert.Equal(t, i, item.AttemptCount)
		assert.True(t, item.NextRetryAt.After(now))
		assert.Nil(t, item.ClaimedAt)
		gaps = append(gaps, item.NextRetryAt.Sub(now))
	}
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 5 * time.Minute}, gaps)

	item.MarkFailed("crm unavailable", nil, policy, now)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, 5, item.AttemptCount)
	assert.NotNil(t, item.CompletedAt)
	assert.False(t, item.IsDue(now.Add(24*time.Hour)))
}

func TestQueueItem_ThreeFailuresThenOperatorRetry(t *testing.T) {
	item := newTestItem(t)
	policy := DefaultBackoffPolicy()
	now := time.Now()

	var lastGap time.Duration
	for i := 1; i <= 3; i++ {
		item.MarkFailed("timeout", nil, policy, now)
		gap := item.NextRetryAt.Sub(now)
		if i <= 2 {
			assert.Equal(t, StatusRetrying, item.Status)
		}
		assert.Greater(t, gap, lastGap)
		lastGap = gap
	}

	require.NoError(t, item.ResetForRetry(now))
	assert.Equal(t, 0, item.AttemptCount)
	assert.Equal(t, StatusRetrying, item.Status)
	assert.Empty(t, item.ErrorMessage)
	assert.Nil(t, item.ErrorDetails)
	assert.True(t, item.IsDue(now))
}

func TestQueueItem_MarkSucceeded(t *testing.T) {
	item := newTestItem(t)
	now := time.Now()
	item.MarkFailed("boom", json.RawMessage(`{"code":"X"}`), DefaultBackoffPolicy(), now)
	item.Claim(now)

	item.MarkSucceeded(json.RawMessage(`{"id":"z-1"}`), now)
	assert.Equal(t, StatusSucceeded, item.Status)
	assert.Equal(t, 2, item.AttemptCount)
	assert.Empty(t, item.ErrorMessage)
	assert.Nil(t, item.ErrorDetails)
	assert.JSONEq(t, `{"id":"z-1"}`, string(item.ResponsePayload))
	assert.NotNil(t, item.CompletedAt)
}

func TestQueueItem_ResetForRetry_RejectsActiveItems(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusProcessing} {
		item := newTestItem(t)
		item.Status = status
		err := item.ResetForRetry(time.Now())
		assert.ErrorIs(t, err, ErrNotRetryable, string(status))
	}

	for _, status := range []Status{StatusSucceeded, StatusFailed, StatusRetrying} {
		item := newTestItem(t)
		item.Status = status
		item.AttemptCount = 5
		archived := time.Now()
		item.ArchivedAt = &archived
		assert.NoError(t, item.ResetForRetry(time.Now()), string(status))
		assert.Equal(t, 0, item.AttemptCount)
		assert.Nil(t, item.ArchivedAt, string(status))
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := DefaultBackoffPolicy()
	assert.Equal(t, time.Minute, p.Delay(0))
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 2*time.Minute, p.Delay(2))
	assert.Equal(t, 32*time.Minute, p.Delay(6))
	assert.Equal(t, time.Hour, p.Delay(7))
	assert.Equal(t, time.Hour, p.Delay(500))

	prev := time.Duration(0)
	for attempt := 1; attempt < 64; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestBackoffPolicy_Normalize(t *testing.T) {
	p := BackoffPolicy{}.Normalize()
	assert.Equal(t, DefaultBackoffPolicy(), p)

	p = BackoffPolicy{BaseDelay: time.Hour, MaxDelay: time.Minute, MaxAttempts: 2}.Normalize()
	assert.Equal(t, time.Hour, p.MaxDelay)
	assert.Equal(t, 2, p.MaxAttempts)
}
