package emailpasswordsrv

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/emailpassword"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

var factors = []mfa.FactorID{mfa.FactorEmailPassword}

type Store interface {
	core.UserReader
	core.EmailPasswordStore
}

type Service struct {
	store Store
	orch  *auth.Orchestrator
	audit auth.AuditService
}

func NewService(store Store, orch *auth.Orchestrator, audit auth.AuditService) *Service {
	if audit == nil {
		audit = auth.NopAuditService{}
	}
	return &Service{store: store, orch: orch, audit: audit}
}

// SignUp creates a password login method, links it to the session user or
// by account info, and issues the session.
func (s *Service) SignUp(ctx context.Context, in emailpassword.Credentials) (emailpassword.Result, error) {
	if err := in.Validate(); err != nil {
		return emailpassword.Result{}, err
	}
	if err := emailpassword.ValidatePassword(in.Password); err != nil {
		return emailpassword.Result{}, err
	}
	tenantID := in.TenantID.OrDefault()
	info := in.AccountInfo()
	log := logx.WithContext(ctx).WithField("tenant_id", tenantID)

	pre, err := s.orch.PreAuthChecks(ctx, auth.PreAuthInput{
		AccountInfo:        info,
		TenantID:           tenantID,
		FactorIDs:          factors,
		IsSignUp:           true,
		Session:            in.Session,
		LinkingWithSession: in.LinkingWithSession,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	if pre.Status == auth.StatusSignUpNotAllowed {
		exists, err := s.passwordUserExists(ctx, tenantID, info.AccountInfo)
		if err != nil {
			return emailpassword.Result{}, err
		}
		if exists {
			return emailpassword.Result{Status: auth.StatusEmailAlreadyExists}, nil
		}
	}
	if pre.Status != auth.StatusOK {
		log.WithField("status", pre.Status).Debug("emailpassword: sign up refused by pre auth checks")
		return mapped(pre.Status, pre.Reason, auth.SignUpErrorCodeMap, auth.StatusSignUpNotAllowed)
	}

	created, err := s.store.CreateEmailPasswordUser(ctx, tenantID, *info.Email, in.Password)
	if err != nil {
		return emailpassword.Result{}, err
	}
	switch created.Status {
	case core.SignUpOK:
	case core.SignUpEmailAlreadyExists:
		return emailpassword.Result{Status: auth.StatusEmailAlreadyExists}, nil
	default:
		return emailpassword.Result{}, core.ErrUnknownStatus(string(created.Status))
	}

	linked, err := s.orch.LinkToSessionIfRequiredElseCreatePrimaryUserIDOrLinkByAccountInfo(ctx, auth.LinkInput{
		TenantID:           tenantID,
		InputUser:          created.User,
		RecipeUserID:       created.RecipeUserID,
		Session:            in.Session,
		LinkingWithSession: in.LinkingWithSession,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	if linked.Status != auth.StatusOK {
		return mapped(linked.Status, linked.Reason, auth.SignUpErrorCodeMap, auth.StatusSignUpNotAllowed)
	}

	post, err := s.orch.PostAuthChecks(ctx, auth.PostAuthInput{
		AuthenticatedUser: linked.User,
		RecipeUserID:      created.RecipeUserID,
		IsSignUp:          true,
		FactorID:          mfa.FactorEmailPassword,
		Session:           in.Session,
		TenantID:          tenantID,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	return emailpassword.Result{Status: auth.StatusOK, User: post.User, Session: post.Session}, nil
}

// SignIn checks the credentials, adding the login method to the tenant when
// the primary session user holds it elsewhere, then links and issues the
// session like SignUp.
func (s *Service) SignIn(ctx context.Context, in emailpassword.Credentials) (emailpassword.Result, error) {
	if err := in.Validate(); err != nil {
		return emailpassword.Result{}, err
	}
	tenantID := in.TenantID.OrDefault()
	info := in.AccountInfo()
	email := *info.Email

	authenticating, err := s.orch.GetAuthenticatingUserAndAddToCurrentTenantIfRequired(ctx, auth.AuthenticatingUserInput{
		RecipeID:    user.RecipeEmailPassword,
		AccountInfo: info.AccountInfo,
		TenantID:    tenantID,
		Session:     in.Session,
		CheckCredentialsOnTenant: func(ctx context.Context, tenantID kernel.TenantID) (bool, error) {
			res, err := s.store.VerifyEmailPasswordCredentials(ctx, tenantID, email, in.Password)
			return err == nil && res.Status == core.SignInOK, err
		},
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	if authenticating == nil {
		return emailpassword.Result{Status: auth.StatusWrongCredentials}, nil
	}

	pre, err := s.orch.PreAuthChecks(ctx, auth.PreAuthInput{
		AccountInfo:        authenticating.LoginMethod.AccountInfo(),
		AuthenticatingUser: authenticating.User,
		TenantID:           tenantID,
		FactorIDs:          factors,
		IsVerified:         authenticating.LoginMethod.Verified,
		Session:            in.Session,
		LinkingWithSession: in.LinkingWithSession,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	if pre.Status != auth.StatusOK {
		return mapped(pre.Status, pre.Reason, auth.SignInErrorCodeMap, auth.StatusSignInNotAllowed)
	}

	signedIn, err := s.store.VerifyEmailPasswordCredentials(ctx, tenantID, email, in.Password)
	if err != nil {
		return emailpassword.Result{}, err
	}
	switch signedIn.Status {
	case core.SignInOK:
	case core.SignInWrongCredentials:
		s.audit.LogSignIn(ctx, authenticating.User.ID, tenantID, user.RecipeEmailPassword, false)
		return emailpassword.Result{Status: auth.StatusWrongCredentials}, nil
	default:
		return emailpassword.Result{}, core.ErrUnknownStatus(string(signedIn.Status))
	}

	linked, err := s.orch.LinkToSessionIfRequiredElseCreatePrimaryUserIDOrLinkByAccountInfo(ctx, auth.LinkInput{
		TenantID:           tenantID,
		InputUser:          signedIn.User,
		RecipeUserID:       signedIn.RecipeUserID,
		Session:            in.Session,
		LinkingWithSession: in.LinkingWithSession,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	if linked.Status != auth.StatusOK {
		return mapped(linked.Status, linked.Reason, auth.SignInErrorCodeMap, auth.StatusSignInNotAllowed)
	}

	post, err := s.orch.PostAuthChecks(ctx, auth.PostAuthInput{
		AuthenticatedUser: linked.User,
		RecipeUserID:      signedIn.RecipeUserID,
		FactorID:          mfa.FactorEmailPassword,
		Session:           in.Session,
		TenantID:          tenantID,
	})
	if err != nil {
		return emailpassword.Result{}, err
	}
	return emailpassword.Result{Status: auth.StatusOK, User: post.User, Session: post.Session}, nil
}

// passwordUserExists tells a refused sign up of a taken email apart from one
// refused for linking reasons.
func (s *Service) passwordUserExists(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo) (bool, error) {
	users, err := s.store.ListUsersByAccountInfo(ctx, tenantID, info, false)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		for _, lm := range u.LoginMethods {
			if lm.RecipeID == user.RecipeEmailPassword && lm.HasSameEmailAs(info.Email) && lm.InTenant(tenantID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func mapped(status auth.Status, reason accountlinking.SessionLinkFailure, codes auth.ErrorCodeMap, errorStatus auth.Status) (emailpassword.Result, error) {
	resp, err := auth.ErrorStatusResponseWithReason(status, reason, codes, errorStatus)
	if err != nil {
		return emailpassword.Result{}, err
	}
	return emailpassword.Result{Status: resp.Status, Reason: resp.Reason}, nil
}
