package servicebus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

const sendTimeout = 10 * time.Second

// sender is the part of *azservicebus.Sender the notifier uses.
type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// NewClient connects to namespace (e.g. "myns.servicebus.windows.net") with
// the default Azure credential chain.
func NewClient(namespace string) (*azservicebus.Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load azure credential: %w", err)
	}
	return azservicebus.NewClient(namespace, cred, nil)
}

// DeadLetterNotifier forwards jobs that failed for good to a Service Bus
// queue so operators can inspect or replay them.
type DeadLetterNotifier struct {
	sender sender
	queue  string
}

func NewDeadLetterNotifier(client *azservicebus.Client, queue string) (*DeadLetterNotifier, error) {
	s, err := client.NewSender(queue, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while making new sender service bus.")
		return nil, err
	}
	return &DeadLetterNotifier{sender: s, queue: queue}, nil
}

func (n *DeadLetterNotifier) Notify(ctx context.Context, evt model.JobEvent) {
	if !evt.Terminal || evt.Status != model.JobFailed {
		return
	}
	log := logger.GetLogger().WithField("job_id", evt.JobID).WithField("queue", n.queue)
	body, err := json.Marshal(evt)
	if err != nil {
		log.WithField("error", err).Warn("Failed to encode dead letter")
		return
	}

	messageID := evt.JobID
	subject := string(evt.JobType)
	contentType := "application/json"
	props := map[string]any{
		"job_type": string(evt.JobType),
		"attempt":  int64(evt.Attempt),
	}
	if evt.Platform != "" {
		props["platform"] = evt.Platform
	}
	if evt.UserID != "" {
		props["user_id"] = evt.UserID
	}
	msg := &azservicebus.Message{
		MessageID:             &messageID,
		Subject:               &subject,
		ContentType:           &contentType,
		Body:                  body,
		ApplicationProperties: props,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := n.sender.SendMessage(ctx, msg, nil); err != nil {
		log.WithField("error", err).Error("Error while sending message.")
		return
	}
	log.Info("Dead letter sent")
}

func (n *DeadLetterNotifier) Close(ctx context.Context) error {
	return n.sender.Close(ctx)
}
