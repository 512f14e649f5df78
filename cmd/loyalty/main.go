package main

import (
	"context"
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/internal/httpapi"
	"solcity-loyalty/internal/server"
	"solcity-loyalty/pkg/config"
	"solcity-loyalty/pkg/db"
	"solcity-loyalty/pkg/events"
	"solcity-loyalty/pkg/health"
	"solcity-loyalty/pkg/logger"
	"solcity-loyalty/services/customer"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/offer"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/redemption"
	"solcity-loyalty/services/reward"
	"solcity-loyalty/services/rule"
	"solcity-loyalty/services/token"
	"solcity-loyalty/services/transaction"
	"solcity-loyalty/services/treasury"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		events.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
			registerServeMux,
			registerAsynqServer,
			server.ProvideHTTPServer,
		),
		program.Module,
		treasury.Module,
		token.Module,
		merchant.Module,
		customer.Module,
		rule.Module,
		offer.Module,
		transaction.Module,
		reward.Module,
		redemption.Module,
		httpapi.Module,
		fx.Invoke(
			migrate,
			registerHandlers,
			runServeMux,
			runScheduler,
			server.Run,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&program.Program{},
		&merchant.Merchant{},
		&customer.Customer{},
		&rule.RewardRule{},
		&offer.RedemptionOffer{},
		&redemption.Voucher{},
		&redemption.OfferRedemption{},
		&transaction.Record{},
		&transaction.PairRecord{},
		&token.Balance{},
		&token.LedgerEntry{},
		&treasury.Account{},
		&treasury.Transfer{},
		&reward.PendingIssuance{},
	)
}

func registerServeMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func registerAsynqServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				events.QueueLoyalty: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)
}

func registerHandlers(mux *asynq.ServeMux, rewards *reward.Service) {
	mux.HandleFunc(events.TaskReconcileSweep, rewards.HandleReconcileSweep)
}

// runScheduler enqueues the reconciliation sweep on a fixed cadence so
// stalled issuances are always eventually resolved.
func runScheduler(lc fx.Lifecycle, cfg *config.Config) error {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		nil,
	)

	if _, err := scheduler.Register(
		"@every 10m",
		asynq.NewTask(events.TaskReconcileSweep, nil),
		asynq.Queue(events.QueueLoyalty),
	); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})

	return nil
}

func runServeMux(lc fx.Lifecycle, srv *asynq.Server, mux *asynq.ServeMux) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(mux); err != nil {
					zap.L().Error("[Asynq] failed to start Asynq server", zap.Error(err))
					os.Exit(1)
				}
			}()
			zap.L().Info("[Asynq] Asynq server started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop()
			return nil
		},
	})
}
