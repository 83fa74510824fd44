package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/presence-keeper-go/internal/model"
)

const publishTimeout = 2 * time.Second

type statusMessage struct {
	Identity  string              `json:"identity"`
	Status    model.SessionStatus `json:"status"`
	Timestamp int64               `json:"timestamp"`
}

// StatusPublisher fans session status transitions out over redis pub/sub so
// operator tooling can watch the keeper converge. Publishing is best-effort
// and never blocks the caller.
type StatusPublisher struct {
	client *Client
}

func NewStatusPublisher(client *Client) *StatusPublisher {
	return &StatusPublisher{client: client}
}

func (p *StatusPublisher) SessionStatus(identity string, status model.SessionStatus) {
	payload, err := json.Marshal(statusMessage{
		Identity:  identity,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, StatusChannel(identity), payload).Err(); err != nil {
			log.Debug().Err(err).Str("identity", identity).Msg("failed to publish status")
		}
	}()
}
