package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"coursedocs-backend/internal/documents"
	"coursedocs-backend/internal/extract"
	"coursedocs-backend/internal/extraction"
	"coursedocs-backend/internal/queue"
	"coursedocs-backend/internal/services/health"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/server"
	"coursedocs-backend/internal/shared/server/middleware"
	"coursedocs-backend/internal/shared/storage/db"
	"coursedocs-backend/internal/shared/storage/object"
	localstore "coursedocs-backend/internal/shared/storage/object/local"
	miniostore "coursedocs-backend/internal/shared/storage/object/minio"
	s3store "coursedocs-backend/internal/shared/storage/object/s3"
	"coursedocs-backend/internal/shared/telemetry"
	"coursedocs-backend/internal/workerproc"
)

// Role selects which side of the queue a process sits on.
type Role string

const (
	// RoleAPI only produces jobs.
	RoleAPI Role = "api"
	// RoleWorker produces (reconciler) and consumes jobs.
	RoleWorker Role = "worker"
	// RoleAdmin is used by one-shot CLI commands.
	RoleAdmin Role = "admin"
)

// App holds every dependency a binary needs. Build constructs it and Close releases it.
type App struct {
	Config config.Config
	Role   Role

	DB       *sql.DB
	Store    object.ObjectStore
	Queue    queue.Queue
	Repo     documents.DocumentsRepo
	Registry *extract.Registry

	Documents  *documents.Service
	Worker     *extraction.Worker
	Reconciler *documents.Reconciler
	Health     *health.Service
	Router     *gin.Engine

	closers []func() error
}

// Build prepares all dependencies for the given role. On error everything built so far is closed.
func Build(ctx context.Context, cfg config.Config, role Role) (app *App, err error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if role == "" {
		role = RoleAPI
	}

	app = &App{Config: cfg, Role: role, Health: health.NewService(2 * time.Second)}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if err = app.buildDB(ctx); err != nil {
		return app, err
	}
	if err = app.buildStore(ctx); err != nil {
		return app, err
	}
	if err = app.buildQueue(ctx); err != nil {
		return app, err
	}
	app.buildServices()

	telemetry.Info("bootstrap.ready", map[string]any{
		"role":         string(role),
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"queue":        cfg.QueueBackend,
		"database":     app.DB != nil,
	})
	return app, nil
}

// Pool returns a worker pool consuming the app queue with the configured concurrency.
func (a *App) Pool() *workerproc.Pool {
	return &workerproc.Pool{
		Consumer:        a.Queue,
		Processor:       a.Worker,
		Concurrency:     a.Config.WorkerConcurrency,
		ShutdownTimeout: a.Config.ShutdownTimeout,
	}
}

// Close releases dependencies in reverse construction order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildDB(ctx context.Context) error {
	cfg := a.Config
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil
		}
		return fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		// The singleton outlives a single invocation, so it is never closed here.
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err == nil {
			a.onClose(sqlDB.Close)
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil
		}
		return err
	}

	if cfg.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	a.DB = sqlDB
	a.Health.Register("database", func(ctx context.Context) error {
		return db.Ping(ctx, sqlDB, 0)
	})
	return nil
}

func (a *App) buildStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return err
		}
		a.Store = store
	case "minio":
		store, err := miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		a.Store = store
	default:
		a.Store = localstore.New(cfg.LocalStoreDir)
	}
	return nil
}

func (a *App) buildQueue(ctx context.Context) error {
	cfg := a.Config
	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		q = queue.NewRedisQueue(client, cfg.RedisQueueKey)
		a.Health.Register("queue", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	case "sqs":
		if strings.TrimSpace(cfg.SQSQueueURL) == "" {
			return fmt.Errorf("QUEUE_BACKEND=sqs requires SQS_QUEUE_URL")
		}
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL, cfg.SQSVisibilitySecs)
		if err != nil {
			return err
		}
		q = client
	case "kafka":
		opts := queue.KafkaOptions{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}
		if a.Role == RoleWorker {
			opts.GroupID = cfg.KafkaGroupID
		}
		kq, err := queue.NewKafkaQueue(opts)
		if err != nil {
			return err
		}
		q = kq
	default:
		if a.Role == RoleAdmin {
			telemetry.Warn("bootstrap.memory_queue", map[string]any{"reason": "jobs enqueued by this process are not visible to workers"})
		}
		q = queue.NewMemoryQueue(cfg.MemoryQueueSize)
	}
	a.Queue = q
	a.onClose(q.Close)
	return nil
}

func (a *App) buildServices() {
	cfg := a.Config
	if a.DB != nil {
		a.Repo = &documents.PGRepo{DB: a.DB}
	} else {
		a.Repo = documents.NewMemoryRepo()
	}
	a.Registry = extract.DefaultRegistry()

	a.Documents = documents.NewService(a.Store, a.Repo, a.Queue, documents.Options{
		MaxUploadSize: cfg.MaxUploadSize,
		VerifyContent: cfg.VerifyContent,
		DedupMode:     cfg.DedupMode,
	})
	a.Worker = extraction.NewWorker(a.Repo, a.Store, a.Registry, cfg.JobTimeout)
	a.Reconciler = documents.NewReconciler(a.Repo, a.Queue, documents.ReconcilerOptions{
		StaleAfter: cfg.StaleAfter,
		Interval:   cfg.SweepInterval,
		BatchSize:  cfg.SweepBatchSize,
	})
	a.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		DocumentHandler: documents.NewHandler(a.Documents),
		Health:          a.Health,
		RateLimiter:     middleware.NewRateLimiter(nil),
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
