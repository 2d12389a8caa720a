package iamcontainer

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/authlink/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coreinfra"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/emailpassword/emailpasswordsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification/emailverificationsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa/mfasrv"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpmem"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/passwordless/passwordlesssrv"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessioninfra"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessionmem"
	"github.com/Abraxas-365/authlink/pkg/jobx"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	// Mailer delivers verification links. The IAM module only knows the
	// interface; cmd/ picks console or SES.
	Mailer emailverificationsrv.Mailer

	// CodeMailer delivers passwordless sign in codes.
	CodeMailer otpinfra.CodeMailer

	// Jobs records link events in the background.
	Jobs *jobx.Client
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	Core         core.Client
	Sessions     *session.Manager
	Linking      *accountlinking.Engine
	Orchestrator *auth.Orchestrator

	// Services
	EmailPasswordService     *emailpasswordsrv.Service
	EmailVerificationService *emailverificationsrv.Service
	AccountService           *authsrv.AccountService
	OTPService               *otpsrv.Service
	PasswordlessService      *passwordlesssrv.Service

	// Handlers for cmd/ to register routes
	EmailPasswordHandlers     *emailpasswordsrv.Handler
	EmailVerificationHandlers *emailverificationsrv.Handler
	AccountHandlers           *authsrv.Handler
	PasswordlessHandlers      *passwordlesssrv.Handler

	// Middleware for cmd/ to protect route groups
	SessionMiddleware *auth.SessionMiddleware

	db *sqlx.DB
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: core → sessions → linking → orchestration → recipes → handlers.
// ---------------------------------------------------------------------------

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	cfg := deps.Cfg
	c := &Container{db: deps.DB}

	// ── Core ─────────────────────────────────────────────────────────────

	switch cfg.Core.Mode {
	case "http":
		c.Core = coreinfra.NewHTTPClient(cfg.Core)
		logx.Infof("  ✅ Using remote core at %s", cfg.Core.ConnectionURI)
	default:
		c.Core = coremem.New()
		logx.Warn("  ⚠️  Using in-memory core (users are lost on restart)")
	}

	// ── Sessions ─────────────────────────────────────────────────────────

	secret := cfg.Session.Secret
	if secret == "" {
		secret = uuid.NewString()
		logx.Warn("  ⚠️  SESSION_SECRET not set, tokens will not survive a restart")
	}
	codec := session.NewTokenCodec(secret, cfg.Session.Issuer, cfg.Session.AccessTokenTTL)

	switch cfg.Session.Store {
	case "redis":
		c.Sessions = sessioninfra.NewRedisProvider(deps.Redis, codec, c.Core)
		logx.Info("  ✅ Using Redis session store")
	default:
		c.Sessions = sessionmem.NewProvider(codec, c.Core)
		logx.Warn("  ⚠️  Using in-memory session store (not recommended for production)")
	}

	// ── Link history ─────────────────────────────────────────────────────

	linkEvents := authinfra.NewPostgresLinkEventRepository(deps.DB)
	auditService := authinfra.NewLogxAuditService()
	deps.Jobs.Register(authinfra.JobLinkEvent, authinfra.LinkEventHandler(linkEvents, auditService))

	// ── Account linking ──────────────────────────────────────────────────

	var policy accountlinking.ShouldLinkFunc
	if cfg.AccountLinking.Enabled {
		policy = accountlinking.AlwaysLink(cfg.AccountLinking.RequiresVerification)
		logx.Infof("  ✅ Automatic account linking enabled (verification required: %t)", cfg.AccountLinking.RequiresVerification)
	}

	c.Linking = accountlinking.NewEngine(
		accountlinking.Deps{Core: c.Core, EmailVerifier: emailverification.SessionClaimVerifier{}},
		accountlinking.Config{
			ShouldDoAutomaticAccountLinking: policy,
			OnAccountLinked:                 authinfra.OnAccountLinked(deps.Jobs),
			MaxRetries:                      cfg.AccountLinking.MaxRetries,
		},
	)

	// ── Multi-factor auth ────────────────────────────────────────────────

	factors := mfasrv.NewService(cfg.MFA)
	var mfaRecipe mfa.Recipe
	if cfg.MFA.Enabled {
		mfaRecipe = factors
		logx.Info("  ✅ Multi-factor auth enabled")
	}

	c.Orchestrator = auth.NewOrchestrator(auth.Deps{
		Core:         c.Core,
		Linking:      c.Linking,
		Sessions:     c.Sessions,
		FirstFactors: factors,
		MFA:          mfaRecipe,
		Audit:        auditService,
		MaxRetries:   cfg.AccountLinking.MaxRetries,
	})

	// ── Recipes ──────────────────────────────────────────────────────────

	c.EmailVerificationService = emailverificationsrv.NewService(
		c.Core,
		c.Linking,
		c.Sessions,
		deps.Mailer,
		cfg.EmailVerification,
		cfg.Server.AppName,
	)
	c.Sessions.RegisterClaim(c.EmailVerificationService.Claim())

	c.EmailPasswordService = emailpasswordsrv.NewService(c.Core, c.Orchestrator, auditService)

	if cfg.Passwordless.Enabled {
		var codes otp.Repository
		switch cfg.Session.Store {
		case "redis":
			codes = otpinfra.NewRedisRepository(deps.Redis, "")
			logx.Info("  ✅ Passwordless codes stored in Redis")
		default:
			codes = otpmem.NewRepository()
			logx.Warn("  ⚠️  Passwordless codes stored in memory")
		}
		c.OTPService = otpsrv.NewService(codes, otpinfra.NewEmailNotifier(deps.CodeMailer, cfg.Server.AppName), cfg.Passwordless)
		c.PasswordlessService = passwordlesssrv.NewService(c.Core, c.Orchestrator, c.OTPService, cfg.Passwordless)
	}

	c.AccountService = authsrv.NewAccountService(c.Core, c.Linking, linkEvents,
		func(ctx context.Context, event auth.LinkEvent) error {
			return authinfra.EnqueueLinkEvent(ctx, deps.Jobs, event)
		},
	)

	// ── Handlers ─────────────────────────────────────────────────────────

	c.EmailPasswordHandlers = emailpasswordsrv.NewHandler(c.EmailPasswordService, c.Orchestrator, cfg.Session.AccessTokenTTL)
	c.EmailVerificationHandlers = emailverificationsrv.NewHandler(c.EmailVerificationService, c.Sessions, cfg.Session.AccessTokenTTL)
	c.AccountHandlers = authsrv.NewHandler(c.AccountService)
	if c.PasswordlessService != nil {
		c.PasswordlessHandlers = passwordlesssrv.NewHandler(c.PasswordlessService, c.Orchestrator, cfg.Session.AccessTokenTTL)
	}

	// ── Middleware ───────────────────────────────────────────────────────

	c.SessionMiddleware = auth.NewSessionMiddleware(c.Sessions)

	logx.Info("✅ IAM container initialized")
	return c
}

// Migrate applies the IAM schema.
func (c *Container) Migrate(ctx context.Context) error {
	return authinfra.Migrate(ctx, c.db)
}

// RegisterRoutes mounts every IAM API under r.
func (c *Container) RegisterRoutes(r fiber.Router) {
	c.EmailPasswordHandlers.RegisterRoutes(r, c.SessionMiddleware)
	c.EmailVerificationHandlers.RegisterRoutes(r, c.SessionMiddleware)
	if c.PasswordlessHandlers != nil {
		c.PasswordlessHandlers.RegisterRoutes(r, c.SessionMiddleware)
	}
	c.AccountHandlers.RegisterRoutes(r, c.SessionMiddleware, c.EmailVerificationHandlers.RequireVerified())
}
