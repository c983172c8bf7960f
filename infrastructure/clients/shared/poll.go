package shared

import (
	"context"
	"time"

	"content-publisher/domain/model"
)

// PollState is what one status check observed.
type PollState int

const (
	PollPending PollState = iota
	PollReady
	PollFailed
)

// PollUntil calls check up to attempts times, sleeping interval between calls.
// It returns on the first Ready or Failed observation; exhausting the attempts
// is a transient timeout error and never success.
func PollUntil(ctx context.Context, interval time.Duration, attempts int, check func(ctx context.Context) (PollState, error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		state, err := check(ctx)
		if err != nil {
			return err
		}
		switch state {
		case PollReady:
			return nil
		case PollFailed:
			return model.NewPlatformError(model.KindProtocol, "", "processing failed")
		}
	}
	return model.NewPlatformError(model.KindTransient, "timeout", "still processing after %d checks", attempts)
}
