package passwordlesssrv

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/iam/passwordless"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

type Store interface {
	core.UserReader
	core.PasswordlessStore
}

// Codes issues and checks one time codes.
type Codes interface {
	Generate(ctx context.Context, tenantID kernel.TenantID, channel otp.Channel, contact string) (*otp.OTP, error)
	Verify(ctx context.Context, tenantID kernel.TenantID, deviceID, code string) (*otp.OTP, error)
}

type Service struct {
	store Store
	orch  *auth.Orchestrator
	codes Codes
	cfg   config.PasswordlessConfig
}

func NewService(store Store, orch *auth.Orchestrator, codes Codes, cfg config.PasswordlessConfig) *Service {
	return &Service{store: store, orch: orch, codes: codes, cfg: cfg}
}

// CreateCode checks the contact may sign in or up, then sends it a code.
// The session user is not promoted here; that happens on consume.
func (s *Service) CreateCode(ctx context.Context, in passwordless.CreateCodeInput) (passwordless.CreateCodeResult, error) {
	if err := in.Validate(); err != nil {
		return passwordless.CreateCodeResult{}, err
	}
	tenantID := in.TenantID.OrDefault()
	info := in.AccountInfo()

	existing, err := s.passwordlessUser(ctx, tenantID, info.AccountInfo)
	if err != nil {
		return passwordless.CreateCodeResult{}, err
	}

	pre, err := s.orch.PreAuthChecks(ctx, auth.PreAuthInput{
		AccountInfo:                 info,
		AuthenticatingUser:          existing,
		TenantID:                    tenantID,
		FactorIDs:                   []mfa.FactorID{in.Factor()},
		IsSignUp:                    existing == nil,
		IsVerified:                  true,
		SignInVerifiesLoginMethod:   true,
		SkipSessionUserUpdateInCore: true,
		Session:                     in.Session,
		LinkingWithSession:          in.LinkingWithSession,
	})
	if err != nil {
		return passwordless.CreateCodeResult{}, err
	}
	if pre.Status != auth.StatusOK {
		resp, err := auth.ErrorStatusResponseWithReason(pre.Status, pre.Reason, auth.PasswordlessErrorCodeMap, auth.StatusSignInUpNotAllowed)
		if err != nil {
			return passwordless.CreateCodeResult{}, err
		}
		return passwordless.CreateCodeResult{Status: resp.Status, Reason: resp.Reason}, nil
	}

	code, err := s.codes.Generate(ctx, tenantID, in.Channel(), in.Normalized())
	if err != nil {
		return passwordless.CreateCodeResult{}, err
	}
	return passwordless.CreateCodeResult{
		Status:          auth.StatusOK,
		DeviceID:        code.DeviceID,
		FlowType:        passwordless.FlowUserInputCode,
		CodeLifetime:    s.cfg.CodeTTL,
		AttemptsAllowed: code.MaxAttempts,
	}, nil
}

// ConsumeCode checks the code, signs the contact in or up in the core,
// links the login method and issues the session.
func (s *Service) ConsumeCode(ctx context.Context, in passwordless.ConsumeCodeInput) (passwordless.ConsumeCodeResult, error) {
	if in.DeviceID == "" || in.UserInputCode == "" {
		return passwordless.ConsumeCodeResult{}, passwordless.ErrBadInput("deviceId and userInputCode are required")
	}
	tenantID := in.TenantID.OrDefault()
	log := logx.WithContext(ctx).WithFields(logx.Fields{"tenant_id": tenantID, "device_id": in.DeviceID})

	code, err := s.codes.Verify(ctx, tenantID, in.DeviceID, in.UserInputCode)
	if res, handled := s.codeFailure(err); handled {
		log.WithField("status", res.Status).Debug("passwordless: code rejected")
		return res, nil
	}
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}

	contact := passwordless.ContactOf(code)
	info := contact.AccountInfo()
	factor := contact.Factor()

	authenticating, err := s.orch.GetAuthenticatingUserAndAddToCurrentTenantIfRequired(ctx, auth.AuthenticatingUserInput{
		RecipeID:    user.RecipePasswordless,
		AccountInfo: info.AccountInfo,
		TenantID:    tenantID,
		Session:     in.Session,
		CheckCredentialsOnTenant: func(context.Context, kernel.TenantID) (bool, error) {
			return true, nil
		},
	})
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}

	pre := auth.PreAuthInput{
		AccountInfo:               info,
		TenantID:                  tenantID,
		FactorIDs:                 []mfa.FactorID{factor},
		IsSignUp:                  authenticating == nil,
		IsVerified:                true,
		SignInVerifiesLoginMethod: true,
		Session:                   in.Session,
		LinkingWithSession:        in.LinkingWithSession,
	}
	if authenticating != nil {
		pre.AuthenticatingUser = authenticating.User
	}
	checked, err := s.orch.PreAuthChecks(ctx, pre)
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}
	if checked.Status != auth.StatusOK {
		log.WithField("status", checked.Status).Debug("passwordless: sign in/up refused by pre auth checks")
		return mapped(checked.Status, checked.Reason)
	}

	signedIn, err := s.store.SignInUpPasswordlessUser(ctx, tenantID, info.AccountInfo)
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}
	if signedIn.Status != core.PasswordlessOK {
		return passwordless.ConsumeCodeResult{}, core.ErrUnknownStatus(string(signedIn.Status))
	}

	linked, err := s.orch.LinkToSessionIfRequiredElseCreatePrimaryUserIDOrLinkByAccountInfo(ctx, auth.LinkInput{
		TenantID:           tenantID,
		InputUser:          signedIn.User,
		RecipeUserID:       signedIn.RecipeUserID,
		Session:            in.Session,
		LinkingWithSession: in.LinkingWithSession,
	})
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}
	if linked.Status != auth.StatusOK {
		return mapped(linked.Status, linked.Reason)
	}

	post, err := s.orch.PostAuthChecks(ctx, auth.PostAuthInput{
		AuthenticatedUser: linked.User,
		RecipeUserID:      signedIn.RecipeUserID,
		IsSignUp:          signedIn.CreatedNewRecipeUser,
		FactorID:          factor,
		Session:           in.Session,
		TenantID:          tenantID,
	})
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}
	return passwordless.ConsumeCodeResult{
		Status:               auth.StatusOK,
		User:                 post.User,
		Session:              post.Session,
		CreatedNewRecipeUser: signedIn.CreatedNewRecipeUser,
	}, nil
}

// codeFailure turns the user facing code errors into statuses.
func (s *Service) codeFailure(err error) (passwordless.ConsumeCodeResult, bool) {
	switch {
	case err == nil:
		return passwordless.ConsumeCodeResult{}, false
	case errx.IsCode(err, otp.CodeInvalidOTP):
		var e *errx.Error
		errx.As(err, &e)
		left, _ := e.Details["attempts_remaining"].(int)
		return passwordless.ConsumeCodeResult{
			Status:         passwordless.StatusIncorrectCode,
			FailedAttempts: s.cfg.MaxAttempts - left,
			MaxAttempts:    s.cfg.MaxAttempts,
		}, true
	case errx.IsCode(err, otp.CodeOTPExpired):
		return passwordless.ConsumeCodeResult{Status: passwordless.StatusExpiredCode}, true
	case errx.IsCode(err, otp.CodeUnknownDevice), errx.IsCode(err, otp.CodeTooManyAttempts):
		return passwordless.ConsumeCodeResult{Status: passwordless.StatusRestartFlow}, true
	}
	return passwordless.ConsumeCodeResult{}, false
}

// passwordlessUser finds the user holding a passwordless login method for
// info in tenantID.
func (s *Service) passwordlessUser(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo) (*user.User, error) {
	users, err := s.store.ListUsersByAccountInfo(ctx, tenantID, info, false)
	if err != nil {
		return nil, err
	}
	for i := range users {
		for _, lm := range users[i].LoginMethods {
			if lm.RecipeID == user.RecipePasswordless && lm.InTenant(tenantID) && lm.HasSameEmailOrPhoneAs(info) {
				return &users[i], nil
			}
		}
	}
	return nil, nil
}

func mapped(status auth.Status, reason accountlinking.SessionLinkFailure) (passwordless.ConsumeCodeResult, error) {
	resp, err := auth.ErrorStatusResponseWithReason(status, reason, auth.PasswordlessErrorCodeMap, auth.StatusSignInUpNotAllowed)
	if err != nil {
		return passwordless.ConsumeCodeResult{}, err
	}
	return passwordless.ConsumeCodeResult{Status: resp.Status, Reason: resp.Reason}, nil
}
