package livesync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/livesync/pkg/auth"
	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"budget exhausted", websocket.ErrMaxRetriesExceeded, StatusFatal},
		{"wrapped budget exhausted", errors.Wrap(websocket.ErrMaxRetriesExceeded, "reconnect"), StatusFatal},
		{"auth required", graphql.ErrAuthenticationRequired, StatusSignInRequired},
		{"refresh failed", errors.Mark(errors.New("401"), auth.ErrRefreshFailed), StatusSignInRequired},
		{"rate limited", &graphql.RateLimitedError{RetryAfter: time.Second}, StatusRetryLater},
		{"server error", &graphql.TransportError{StatusCode: http.StatusServiceUnavailable}, StatusRetryLater},
		{"too many requests", &graphql.TransportError{StatusCode: http.StatusTooManyRequests}, StatusRetryLater},
		{"bad request", &graphql.TransportError{StatusCode: http.StatusBadRequest}, StatusFailed},
		{"api error", &graphql.APIError{Messages: []string{"x"}}, StatusFailed},
		{"dial failure", &websocket.ConnectionError{Op: "dial", Err: errors.New("refused")}, StatusReconnecting},
		{"heartbeat timeout", websocket.ErrHeartbeatTimeout, StatusReconnecting},
		{"parse error", &websocket.ParseError{Raw: []byte("x"), Err: errors.New("bad")}, StatusFailed},
		{"canceled", context.Canceled, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "sign_in_required", StatusSignInRequired.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", Status(99).String())
}
