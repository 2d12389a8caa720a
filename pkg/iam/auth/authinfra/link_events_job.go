package authinfra

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/jobx"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// JobLinkEvent records a link or unlink in the background.
const JobLinkEvent = "auth.link_event"

// EnqueueLinkEvent schedules event for recording. The id is fixed here so a
// retried job writes the same row.
func EnqueueLinkEvent(ctx context.Context, enq jobx.Enqueuer, event auth.LinkEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	job, err := jobx.NewJob(JobLinkEvent, event)
	if err != nil {
		return err
	}
	_, err = enq.Enqueue(ctx, job)
	return err
}

// OnAccountLinked enqueues a link event for every link the engine makes.
// Enqueue failures are logged; the link itself already happened.
func OnAccountLinked(enq jobx.Enqueuer) accountlinking.OnAccountLinkedFunc {
	return func(ctx context.Context, primary *user.User, linked user.LoginMethod) {
		err := EnqueueLinkEvent(ctx, enq, auth.LinkEvent{
			Kind:          auth.LinkEventLinked,
			PrimaryUserID: primary.ID,
			RecipeUserID:  linked.RecipeUserID,
			RecipeID:      linked.RecipeID,
			TenantID:      firstTenant(linked),
		})
		if err != nil {
			logx.WithContext(ctx).WithError(err).
				WithField("recipe_user_id", linked.RecipeUserID).
				Error("auth: failed to enqueue link event")
		}
	}
}

// LinkEventHandler stores the event and writes the audit entry.
func LinkEventHandler(repo auth.LinkEventRepository, audit auth.AuditService) jobx.HandlerFunc {
	return func(ctx context.Context, job *jobx.JobInfo) error {
		event, err := jobx.DecodePayload[auth.LinkEvent](job)
		if err != nil {
			return err
		}
		if err := repo.Save(ctx, event); err != nil {
			return err
		}
		if event.Kind == auth.LinkEventLinked {
			audit.LogAccountLinked(ctx, event.PrimaryUserID, event.RecipeUserID, event.TenantID, event.RecipeID)
		}
		return nil
	}
}

func firstTenant(lm user.LoginMethod) kernel.TenantID {
	if len(lm.TenantIDs) == 0 {
		return kernel.DefaultTenantID
	}
	return lm.TenantIDs[0]
}
