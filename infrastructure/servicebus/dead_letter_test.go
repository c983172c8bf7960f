package servicebus

import (
	"context"
	"encoding/json"
	"testing"

	"content-publisher/domain/model"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error {
	return m.Called(ctx, message, options).Error(0)
}

func (m *MockSender) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestDeadLetterNotifier_SendsTerminalFailures(t *testing.T) {
	s := new(MockSender)
	s.On("SendMessage", mock.Anything, mock.Anything, (*azservicebus.SendMessageOptions)(nil)).Return(nil)
	n := &DeadLetterNotifier{sender: s, queue: "dead-jobs"}

	msg := "boom"
	n.Notify(context.Background(), model.JobEvent{
		Type:     "job.failed",
		JobID:    "j1",
		JobType:  model.JobPublish,
		Status:   model.JobFailed,
		Attempt:  3,
		Terminal: true,
		UserID:   "u1",
		Platform: model.PlatformWordPress,
		Error:    &msg,
	})

	s.AssertNumberOfCalls(t, "SendMessage", 1)
	sent := s.Calls[0].Arguments.Get(1).(*azservicebus.Message)
	require.NotNil(t, sent.MessageID)
	assert.Equal(t, "j1", *sent.MessageID)
	assert.Equal(t, "publish", *sent.Subject)
	assert.Equal(t, model.PlatformWordPress, sent.ApplicationProperties["platform"])
	assert.Equal(t, int64(3), sent.ApplicationProperties["attempt"])

	var evt model.JobEvent
	require.NoError(t, json.Unmarshal(sent.Body, &evt))
	assert.Equal(t, "boom", *evt.Error)
}

func TestDeadLetterNotifier_IgnoresOtherEvents(t *testing.T) {
	s := new(MockSender)
	n := &DeadLetterNotifier{sender: s, queue: "dead-jobs"}

	n.Notify(context.Background(), model.JobEvent{Type: "job.retrying", Status: model.JobWaiting})
	n.Notify(context.Background(), model.JobEvent{Type: "job.completed", Status: model.JobCompleted, Terminal: true})

	s.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}
