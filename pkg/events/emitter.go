package events

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"solcity-loyalty/pkg/config"
)

// Emitter hands event payloads to the outbound queue.
type Emitter interface {
	Emit(ctx context.Context, taskType string, payload any) error
}

var Module = fx.Module("events",
	fx.Provide(
		RegisterClient,
		NewAsynqEmitter,
	),
)

func RegisterClient(lc fx.Lifecycle, cfg *config.Config) *asynq.Client {
	client := asynq.NewClient(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
	)

	if err := client.Ping(); err != nil {
		zap.L().Error("[Asynq] failed to connect to Asynq", zap.Error(err))
		os.Exit(1)
	}

	zap.L().Info("[Asynq] connected to Asynq")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// AsynqEmitter enqueues events onto the loyalty queue.
type AsynqEmitter struct {
	client *asynq.Client
}

func NewAsynqEmitter(client *asynq.Client) Emitter {
	return &AsynqEmitter{client: client}
}

func (e *AsynqEmitter) Emit(ctx context.Context, taskType string, payload any) error {
	task := asynq.NewTask(taskType, marshal(payload))
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueLoyalty)); err != nil {
		zap.L().Error("failed to enqueue event",
			zap.String("task_type", taskType), zap.Error(err))
		return err
	}
	return nil
}

// NopEmitter discards events. Used by tests and by deployments that run the
// engine without a queue.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) error { return nil }
