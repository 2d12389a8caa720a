package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

var _ auth.AuditService = (*LogxAuditService)(nil)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogSignIn(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, method user.RecipeID, success bool) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "sign_in",
		"user_id":     userID,
		"tenant_id":   tenantID,
		"method":      method,
		"success":     success,
		"timestamp":   time.Now(),
	}).Info("Audit: sign in")
}

func (s *LogxAuditService) LogAccountCreated(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, method user.RecipeID) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "account_created",
		"user_id":     userID,
		"tenant_id":   tenantID,
		"method":      method,
		"timestamp":   time.Now(),
	}).Info("Audit: account created")
}

func (s *LogxAuditService) LogAccountLinked(ctx context.Context, primaryUserID kernel.UserID, recipeUserID kernel.RecipeUserID, tenantID kernel.TenantID, method user.RecipeID) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event":    "account_linked",
		"user_id":        primaryUserID,
		"recipe_user_id": recipeUserID,
		"tenant_id":      tenantID,
		"method":         method,
		"timestamp":      time.Now(),
	}).Info("Audit: account linked")
}
