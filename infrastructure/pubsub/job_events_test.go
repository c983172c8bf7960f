package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"content-publisher/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPubSub struct {
	mock.Mock
}

func (m *MockPubSub) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	args := m.Called(ctx, topic, payload, attrs)
	return args.String(0), args.Error(1)
}

func (m *MockPubSub) Close() error {
	return m.Called().Error(0)
}

func TestJobEventNotifier_PublishesWithAttributes(t *testing.T) {
	ps := new(MockPubSub)
	evt := model.JobEvent{
		Type:     "job.completed",
		JobID:    "j1",
		JobType:  model.JobPublish,
		Status:   model.JobCompleted,
		Platform: model.PlatformYouTube,
	}
	ps.On("Publish", mock.Anything, "job-events", mock.MatchedBy(func(b []byte) bool {
		var got model.JobEvent
		return json.Unmarshal(b, &got) == nil && got.JobID == "j1"
	}), map[string]string{
		"type":     "job.completed",
		"job_type": "publish",
		"status":   "completed",
		"platform": model.PlatformYouTube,
	}).Return("srv-1", nil)

	NewJobEventNotifier(ps, "job-events").Notify(context.Background(), evt)
	ps.AssertExpectations(t)
}

func TestJobEventNotifier_SwallowsErrors(t *testing.T) {
	ps := new(MockPubSub)
	ps.On("Publish", mock.Anything, "job-events", mock.Anything, mock.Anything).Return("", errors.New("unavailable"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		NewJobEventNotifier(ps, "job-events").Notify(ctx, model.JobEvent{Type: "job.failed", JobID: "j2"})
	})
	ps.AssertNumberOfCalls(t, "Publish", 1)
	call := ps.Calls[0]
	pubCtx := call.Arguments.Get(0).(context.Context)
	_, hasDeadline := pubCtx.Deadline()
	assert.True(t, hasDeadline)
	assert.NotContains(t, call.Arguments.Get(3).(map[string]string), "platform")
}
