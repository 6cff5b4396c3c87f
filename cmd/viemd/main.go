package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mr-kenikh/viem/internal/account"
	"github.com/mr-kenikh/viem/internal/api"
	"github.com/mr-kenikh/viem/internal/chain"
	"github.com/mr-kenikh/viem/internal/config"
	"github.com/mr-kenikh/viem/internal/observability/alerting"
	"github.com/mr-kenikh/viem/internal/submission"
	"github.com/mr-kenikh/viem/internal/wallet"
	"github.com/mr-kenikh/viem/pkg/logger"
)

// main 是 viemd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("viemd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("VIEMD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "viemd.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	defs, err := chain.LoadDefinitions(cfg.Chains.Definitions)
	if err != nil {
		return err
	}
	if cfg.Chains.Default != "" {
		defs.Default = cfg.Chains.Default
	}
	registry, err := chain.NewRegistry(defs)
	if err != nil {
		return err
	}

	resolver, err := account.NewStaticResolver(cfg.Accounts.Labels)
	if err != nil {
		return err
	}

	agent, err := wallet.DialRPCAgent(ctx, wallet.RPCAgentConfig{
		Name: cfg.Wallet.AgentName,
		URL:  cfg.Wallet.AgentURL,
	})
	if err != nil {
		return err
	}
	defer agent.Close()

	defaults := wallet.Defaults{Account: cfg.Accounts.Default}
	if ch, err := registry.Default(); err == nil {
		defaults.Chain = ch
	}
	sender := wallet.NewSender(agent, resolver, wallet.WithDefaults(defaults))

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	queue, err := buildQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Printf("关闭提交队列失败: %v", err)
		}
	}()

	service := submission.NewService(store, queue, registry)
	processor := submission.NewProcessor(sender, store, queue, registry,
		submission.WithWorkerCount(cfg.Queue.Worker),
		submission.WithProcessorLogger(logger.Named("processor")),
		submission.WithAlertDispatcher(alerting.NewFanout(&alerting.LogNotifier{})),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("提交处理器异常退出: %v", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, service)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildStore(cfg *config.Config) (submission.Store, error) {
	switch cfg.Storage.Submissions.Driver {
	case "", "memory":
		return submission.NewMemoryStore(), nil
	case "mysql":
		return submission.NewMySQLStore(cfg.Storage.Submissions.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Submissions.Driver)
	}
}

func buildQueue(cfg *config.Config) (submission.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return submission.NewMemoryQueue(1024), nil
	case "redis":
		return submission.NewRedisQueue(submission.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return submission.NewRabbitMQQueue(submission.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
