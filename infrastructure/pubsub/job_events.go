package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/logger"
)

const publishTimeout = 5 * time.Second

// JobEventNotifier mirrors every job transition onto a Pub/Sub topic.
type JobEventNotifier struct {
	ps    IPubSub
	topic string
}

func NewJobEventNotifier(ps IPubSub, topic string) *JobEventNotifier {
	return &JobEventNotifier{ps: ps, topic: topic}
}

// Notify never fails the job; publish errors are logged.
func (n *JobEventNotifier) Notify(ctx context.Context, evt model.JobEvent) {
	log := logger.GetLogger().WithField("job_id", evt.JobID).WithField("event", evt.Type)
	payload, err := json.Marshal(evt)
	if err != nil {
		log.WithField("error", err).Warn("Failed to encode job event")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	attrs := map[string]string{
		"type":     evt.Type,
		"job_type": string(evt.JobType),
		"status":   string(evt.Status),
	}
	if evt.Platform != "" {
		attrs["platform"] = evt.Platform
	}
	if _, err := n.ps.Publish(ctx, n.topic, payload, attrs); err != nil {
		log.WithField("error", err).Warn("Failed to publish job event")
	}
}
