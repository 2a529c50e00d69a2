package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPScoreSinkValueAttached(t *testing.T) {
	var received scoreEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPScoreSink(server.URL, time.Second)
	owner := uuid.New()

	err := sink.ValueAttached(context.Background(), owner, decimal.NewFromInt(250))
	require.NoError(t, err)

	assert.Equal(t, "value_attached", received.Type)
	assert.Equal(t, owner.String(), received.Owner)
	assert.True(t, received.Amount.Equal(decimal.NewFromInt(250)))
}

func TestHTTPScoreSinkGoalCompleted(t *testing.T) {
	var received scoreEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPScoreSink(server.URL, time.Second)
	creator, goalID := uuid.New(), uuid.New()

	err := sink.GoalCompleted(context.Background(), creator, goalID, decimal.NewFromInt(1000))
	require.NoError(t, err)

	assert.Equal(t, "goal_completed", received.Type)
	assert.Equal(t, goalID.String(), received.GoalID)
}

func TestHTTPScoreSinkServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	sink := NewHTTPScoreSink(server.URL, time.Second)
	err := sink.ValueAttached(context.Background(), uuid.New(), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPScoreSinkUnreachable(t *testing.T) {
	sink := NewHTTPScoreSink("http://127.0.0.1:1", 200*time.Millisecond)
	err := sink.ValueAttached(context.Background(), uuid.New(), decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestNopScoreSink(t *testing.T) {
	sink := NopScoreSink{}
	assert.NoError(t, sink.ValueAttached(context.Background(), uuid.New(), decimal.NewFromInt(5)))
	assert.NoError(t, sink.GoalCompleted(context.Background(), uuid.New(), uuid.New(), decimal.NewFromInt(5)))
}
