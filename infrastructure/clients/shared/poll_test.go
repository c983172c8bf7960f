package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"content-publisher/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestPollUntil(t *testing.T) {
	tests := []struct {
		name      string
		states    []PollState
		attempts  int
		wantCalls int
		wantKind  model.ErrorKind
	}{
		{name: "ready first", states: []PollState{PollReady}, attempts: 10, wantCalls: 1},
		{name: "ready after pending", states: []PollState{PollPending, PollPending, PollReady}, attempts: 10, wantCalls: 3},
		{name: "failed stops early", states: []PollState{PollPending, PollFailed, PollReady}, attempts: 10, wantCalls: 2, wantKind: model.KindProtocol},
		{name: "ceiling is timeout", states: []PollState{PollPending, PollPending, PollPending}, attempts: 3, wantCalls: 3, wantKind: model.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := PollUntil(context.Background(), time.Millisecond, tt.attempts, func(ctx context.Context) (PollState, error) {
				s := tt.states[calls]
				calls++
				return s, nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantKind, model.KindOf(err))
		})
	}
}

func TestPollUntil_CheckErrorStops(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := PollUntil(context.Background(), time.Millisecond, 5, func(ctx context.Context) (PollState, error) {
		calls++
		return PollPending, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPollUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := PollUntil(ctx, time.Hour, 5, func(ctx context.Context) (PollState, error) {
		calls++
		cancel()
		return PollPending, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
