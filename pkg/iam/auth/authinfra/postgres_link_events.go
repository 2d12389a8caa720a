package authinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/auth/authinfra/migrations"
	"github.com/Abraxas-365/authlink/pkg/kernel"
)

var _ auth.LinkEventRepository = (*PostgresLinkEventRepository)(nil)

// PostgresLinkEventRepository stores the linking history in postgres. Saving
// an event id twice is a no-op, so job retries do not duplicate rows.
type PostgresLinkEventRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresLinkEventRepository(db *sqlx.DB) *PostgresLinkEventRepository {
	return &PostgresLinkEventRepository{db: db, now: time.Now}
}

func (r *PostgresLinkEventRepository) Save(ctx context.Context, event auth.LinkEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}

	query := `
		INSERT INTO link_events (
			id, kind, primary_user_id, recipe_user_id, recipe_id, tenant_id, created_at
		) VALUES (
			:id, :kind, :primary_user_id, :recipe_user_id, :recipe_id, :tenant_id, :created_at
		)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return errx.Wrap(err, "failed to save link event", errx.TypeInternal).
			WithDetail("primary_user_id", event.PrimaryUserID.String())
	}
	return nil
}

func (r *PostgresLinkEventRepository) ListByUser(ctx context.Context, primaryUserID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[auth.LinkEvent], error) {
	opts = opts.Normalize()

	var total int
	countQuery := `SELECT COUNT(*) FROM link_events WHERE primary_user_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, primaryUserID.String()); err != nil {
		return kernel.Paginated[auth.LinkEvent]{}, errx.Wrap(err, "failed to count link events", errx.TypeInternal).
			WithDetail("primary_user_id", primaryUserID.String())
	}

	query := `
		SELECT id, kind, primary_user_id, recipe_user_id, recipe_id, tenant_id, created_at
		FROM link_events
		WHERE primary_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var events []auth.LinkEvent
	if err := r.db.SelectContext(ctx, &events, query, primaryUserID.String(), opts.PageSize, opts.Offset()); err != nil {
		return kernel.Paginated[auth.LinkEvent]{}, errx.Wrap(err, "failed to list link events", errx.TypeInternal).
			WithDetail("primary_user_id", primaryUserID.String())
	}

	return kernel.NewPaginated(events, opts.Page, opts.PageSize, total), nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errx.Wrap(err, "failed to set migration dialect", errx.TypeInternal)
	}
	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return errx.Wrap(err, "failed to run migrations", errx.TypeInternal)
	}
	return nil
}
