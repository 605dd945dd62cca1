package app

import (
	"context"
	"errors"
	"testing"

	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/pkg/rabbitmq"
)

func TestRetryDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{attempt: 0, want: 1},
		{attempt: 1, want: 2},
		{attempt: 3, want: 8},
		{attempt: 7, want: 128},
		{attempt: 8, want: 256},
		{attempt: 9, want: 256},
		{attempt: 20, want: 256},
	}
	for _, tt := range tests {
		if got := retryDelaySeconds(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %d, got %d", tt.attempt, tt.want, got)
		}
	}
}

type publisherStub struct {
	failKeys  map[string]bool
	published []string
	closed    int
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if p.failKeys[routingKey] {
		return errors.New("channel closed")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *publisherStub) Close() { p.closed++ }

type outboxCounter struct {
	published map[string]int
	failed    map[string]int
}

func (c *outboxCounter) ObserveOutboxPublished(routingKey string) { c.published[routingKey]++ }
func (c *outboxCounter) ObserveOutboxFailed(routingKey string)    { c.failed[routingKey]++ }

func TestOutboxDispatcherFlushOnce(t *testing.T) {
	repo := newRepoStub()
	repo.outbox = []domain.OutboxMessage{
		{ID: 1, Exchange: "superapp.events", RoutingKey: domain.RoutingKeyTransferCompleted, Payload: []byte(`{}`), Attempts: 1},
		{ID: 2, Exchange: "superapp.events", RoutingKey: domain.RoutingKeyUserRegistered, Payload: []byte(`{}`), Attempts: 3},
	}
	publisher := &publisherStub{failKeys: map[string]bool{domain.RoutingKeyUserRegistered: true}}
	opened := 0
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		opened++
		return publisher, nil
	}, logging.NewNop())
	counter := &outboxCounter{published: map[string]int{}, failed: map[string]int{}}
	dispatcher.SetObserver(counter)

	published, err := dispatcher.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 1 || len(repo.published) != 1 || repo.published[0] != 1 {
		t.Fatalf("expected message 1 published, got %v", repo.published)
	}
	if repo.failed[2] != 8 {
		t.Fatalf("expected message 2 retried after 8s, got %d", repo.failed[2])
	}
	if publisher.closed != 1 {
		t.Fatalf("expected publisher to be dropped after a failure, closed %d times", publisher.closed)
	}
	if counter.published[domain.RoutingKeyTransferCompleted] != 1 || counter.failed[domain.RoutingKeyUserRegistered] != 1 {
		t.Fatalf("unexpected counters: %+v", counter)
	}

	repo.outbox = []domain.OutboxMessage{{ID: 3, Exchange: "superapp.events", RoutingKey: domain.RoutingKeyCardActivated, Payload: []byte(`{}`), Attempts: 1}}
	if _, err := dispatcher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opened != 2 {
		t.Fatalf("expected a new publisher after the failure, opened %d", opened)
	}
}

func TestOutboxDispatcherConnectFailure(t *testing.T) {
	repo := newRepoStub()
	repo.outbox = []domain.OutboxMessage{{ID: 7, Exchange: "superapp.events", RoutingKey: domain.RoutingKeyCardActivated, Payload: []byte(`{}`), Attempts: 2}}
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, nil)

	if _, err := dispatcher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.failed[7] != 4 {
		t.Fatalf("expected retry after 4s, got %d", repo.failed[7])
	}
}
