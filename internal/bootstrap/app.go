package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"logichat/internal/attachment"
	"logichat/internal/config"
	"logichat/internal/fanout"
	"logichat/internal/model"
	mysqlClient "logichat/internal/platform/mysql"
	rabbitmqClient "logichat/internal/platform/rabbitmq"
	redisClient "logichat/internal/platform/redis"
	"logichat/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Hub         *fanout.Hub
	RelayWorker *worker.EventRelayWorker
	BlobStore   attachment.BlobStore

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.ChatSession{},
		&model.Message{},
		&model.Attachment{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	blobStore, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	hub := fanout.NewHub(cfg.Chat.SubscriberBuffer)
	relayWorker := worker.NewEventRelayWorker(mqConn, hub, cfg.RabbitMQ.ChatEventQueue)
	if err := relayWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start event relay worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		Hub:         hub,
		RelayWorker: relayWorker,
		BlobStore:   blobStore,
		StartedAt:   time.Now(),
	}, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (attachment.BlobStore, error) {
	switch cfg.Backend {
	case "s3":
		return attachment.NewS3Store(ctx, cfg)
	case "local", "":
		return attachment.NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.RelayWorker != nil {
		a.RelayWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
