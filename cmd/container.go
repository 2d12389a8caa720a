// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, mail, jobs) and
// composes bounded-context containers. This is the only place that knows
// about ALL modules.
package main

import (
	"context"
	"fmt"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/authlink/pkg/jobx"
	"github.com/Abraxas-365/authlink/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/authlink/pkg/logx"
	"github.com/Abraxas-365/authlink/pkg/notifx"
	"github.com/Abraxas-365/authlink/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/authlink/pkg/notifx/notifxses"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB     *sqlx.DB
	Redis  *redis.Client
	Mailer *notifx.Client
	Jobs   *jobx.Client

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, mail, jobs
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("  ✅ Database connected")

	// 2. Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	// 3. Mail
	c.initMailer()

	// 4. Background jobs
	jc := c.Config.Jobx
	c.Jobs = jobx.NewClient(
		jobxredis.NewRedisQueue(c.Redis, "authlink"),
		jobx.WithQueues(jc.Queues...),
		jobx.WithConcurrency(jc.Concurrency),
		jobx.WithPollInterval(jc.PollInterval),
		jobx.WithShutdownTimeout(jc.ShutdownTimeout),
		jobx.WithDequeueTimeout(jc.DequeueTimeout),
		jobx.WithDefaultRetryDelay(jc.DefaultRetryDelay),
		jobx.WithDefaultMaxRetries(jc.DefaultMaxRetries),
	)
	logx.Infof("  ✅ Job queue configured (queues: %v)", jc.Queues)

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initMailer() {
	nc := c.Config.Notifx
	from := fmt.Sprintf("%s <%s>", nc.FromName, nc.FromAddress)

	switch nc.Provider {
	case "ses":
		cfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(nc.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.Mailer = notifx.NewClient(notifxses.NewSESProvider(ses.NewFromConfig(cfg), from), from)
		logx.Infof("  ✅ SES mailer configured (region: %s)", nc.AWSRegion)

	case "console":
		c.Mailer = notifx.NewClient(notifxconsole.NewConsoleProvider(), from)
		logx.Info("  ✅ Console mailer configured")

	default:
		logx.Fatalf("Unknown NOTIFX_PROVIDER: %s (use 'console' or 'ses')", nc.Provider)
	}
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:         c.DB,
		Redis:      c.Redis,
		Cfg:        c.Config,
		Mailer:     c.Mailer,
		CodeMailer: c.Mailer,
		Jobs:       c.Jobs,
	})

	if c.Config.Database.AutoMigrate {
		if err := c.IAM.Migrate(context.Background()); err != nil {
			logx.Fatalf("Failed to run IAM migrations: %v", err)
		}
		logx.Info("  ✅ IAM migrations applied")
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")
	go func() {
		if err := c.Jobs.Start(ctx); err != nil {
			logx.Errorf("Job workers stopped: %v", err)
		}
	}()
	logx.Info("  ✅ Job workers started")
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
