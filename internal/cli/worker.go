/**
 * @description
 * The worker command runs the background side of the backend: the outbox
 * dispatcher that relays committed events to RabbitMQ, the cron scheduler for
 * bill payments and money request reminders, and the consumer that turns
 * notification events into inbox rows.
 *
 * @dependencies
 * - github.com/spf13/cobra: Command definition.
 * - pkg/rabbitmq: Event producer and consumer.
 * - internal/app: Dispatcher, scheduler, jobs and notification consumer.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/transfa/superapp-backend/internal/app"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/pkg/rabbitmq"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the outbox dispatcher, scheduled jobs and notification consumer",
	RunE:  runWorker,
}

var errConsumerClosed = errors.New("notification consumer connection closed")

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.base.Component("worker")

	dispatcher := app.NewOutboxDispatcher(rt.repo, publisherFactory(rt), rt.base)
	dispatcher.SetObserver(rt.metrics)

	scheduler := app.NewScheduler(app.NewJobs(rt.service, rt.base), rt.base, rt.cfg)
	if err := scheduler.Start(); err != nil {
		return err
	}

	var consumerClosed <-chan struct{}
	if strings.TrimSpace(rt.cfg.RabbitMQURL) != "" {
		consumer, err := rabbitmq.NewConsumer(rt.cfg.RabbitMQURL, rt.base.Logger)
		if err != nil {
			<-scheduler.Stop().Done()
			return fmt.Errorf("rabbitmq consumer init failed: %w", err)
		}
		defer consumer.Close()

		notifications := app.NewNotificationConsumer(rt.repo, rt.base)
		bindings := map[string]func([]byte) bool{
			domain.RoutingKeyNotificationRequested: notifications.HandleMessage,
		}
		if err := consumer.ConsumeWithBindings(rt.cfg.EventExchange, rt.cfg.NotificationQueue, bindings); err != nil {
			<-scheduler.Stop().Done()
			return fmt.Errorf("notification consumer start failed: %w", err)
		}
		logger.Info("notification consumer started", zap.String("queue", rt.cfg.NotificationQueue))

		closed := make(chan struct{})
		go func() {
			if amqpErr := <-consumer.Closed(); amqpErr != nil {
				logger.Error("rabbitmq connection lost", zap.String("reason", amqpErr.Reason))
			}
			close(closed)
		}()
		consumerClosed = closed
	} else {
		logger.Warn("rabbitmq url missing; notification consumer disabled", zap.String("env", "RABBITMQ_URL"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case <-consumerClosed:
		runErr = errConsumerClosed
	}

	logger.Info("shutdown started")
	cancel()
	wg.Wait()
	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
	return runErr
}

// publisherFactory connects to RabbitMQ on demand. Without a broker URL events are
// logged and marked published.
func publisherFactory(rt *runtime) app.PublisherFactory {
	if strings.TrimSpace(rt.cfg.RabbitMQURL) == "" {
		rt.logger.Warn("rabbitmq url missing; outbox events will be dropped", zap.String("env", "RABBITMQ_URL"))
		return func() (rabbitmq.Publisher, error) {
			return &rabbitmq.EventProducerFallback{Logger: rt.base.Logger}, nil
		}
	}
	return func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(rt.cfg.RabbitMQURL, rt.base.Logger)
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
}
