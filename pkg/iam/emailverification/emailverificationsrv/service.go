package emailverificationsrv

import (
	"context"
	"net/url"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
	"github.com/Abraxas-365/authlink/pkg/notifx"
)

// Mailer delivers verification links.
type Mailer interface {
	SendEmailVerification(ctx context.Context, v notifx.VerificationEmail) error
}

type Store interface {
	core.UserReader
	core.EmailVerificationStore
}

// SessionCreator issues the session that replaces one whose login method was
// linked under another primary user.
type SessionCreator interface {
	CreateNewSession(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (session.Session, error)
}

type SendStatus string

const (
	SendOK                   SendStatus = "OK"
	SendEmailAlreadyVerified SendStatus = "EMAIL_ALREADY_VERIFIED_ERROR"
)

type VerifyStatus string

const (
	VerifyOK           VerifyStatus = "OK"
	VerifyInvalidToken VerifyStatus = "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR"
)

// VerifyResult carries a new Session when the caller's session moved to
// another primary user.
type VerifyResult struct {
	Status  VerifyStatus    `json:"status"`
	User    *user.User      `json:"user,omitempty"`
	Session session.Session `json:"-"`
}

type Service struct {
	store    Store
	linker   accountlinking.AccountLinker
	sessions SessionCreator
	mailer   Mailer
	claim    *emailverification.Claim
	cfg      config.EmailVerificationConfig
	appName  string
}

func NewService(store Store, linker accountlinking.AccountLinker, sessions SessionCreator, mailer Mailer, cfg config.EmailVerificationConfig, appName string) *Service {
	return &Service{
		store:    store,
		linker:   linker,
		sessions: sessions,
		mailer:   mailer,
		claim:    emailverification.NewClaim(store),
		cfg:      cfg,
		appName:  appName,
	}
}

// Claim returns the session claim to register with the session provider.
func (s *Service) Claim() *emailverification.Claim {
	return s.claim
}

func (s *Service) Mode() emailverification.Mode {
	return emailverification.Mode(s.cfg.Mode)
}

// SendEmail sends a verification link for the email of the session's login
// method.
func (s *Service) SendEmail(ctx context.Context, sess session.Session) (SendStatus, error) {
	lm, err := s.sessionLoginMethod(ctx, sess)
	if err != nil {
		return "", err
	}
	log := logx.WithContext(ctx).WithField("recipe_user_id", lm.RecipeUserID)

	if lm.Email == nil {
		log.Debug("emailverification: login method has no email, nothing to verify")
		return SendEmailAlreadyVerified, s.setClaim(ctx, sess, true)
	}

	res, err := s.store.CreateEmailVerificationToken(ctx, sess.TenantID(), lm.RecipeUserID, *lm.Email)
	if err != nil {
		return "", err
	}

	switch res.Status {
	case core.VerificationTokenEmailAlreadyVerified:
		log.Debug("emailverification: email already verified")
		return SendEmailAlreadyVerified, s.setClaim(ctx, sess, true)
	case core.VerificationTokenOK:
		link, err := s.verifyLink(res.Token, sess.TenantID())
		if err != nil {
			return "", err
		}
		err = s.mailer.SendEmailVerification(ctx, notifx.VerificationEmail{
			To:       *lm.Email,
			Link:     link,
			AppName:  s.appName,
			TenantID: sess.TenantID().String(),
		})
		if err != nil {
			return "", emailverification.ErrSendFailed(err)
		}
		log.Info("emailverification: verification email sent")
		return SendOK, nil
	}
	return "", core.ErrUnknownStatus(string(res.Status))
}

// VerifyEmail consumes a token. A verified email may make the login method
// linkable, so linking by account info runs right after. When sess belongs
// to the verified login method it is refreshed, or replaced if linking moved
// the login method under another primary user.
func (s *Service) VerifyEmail(ctx context.Context, tenantID kernel.TenantID, token string, sess session.Session) (VerifyResult, error) {
	if token == "" {
		return VerifyResult{}, emailverification.ErrMissingToken()
	}

	res, err := s.store.VerifyEmailUsingToken(ctx, tenantID, token)
	if err != nil {
		return VerifyResult{}, err
	}

	switch res.Status {
	case core.VerifyEmailInvalidToken:
		return VerifyResult{Status: VerifyInvalidToken}, nil
	case core.VerifyEmailOK:
		u, err := s.store.GetUser(ctx, res.RecipeUserID.UserID())
		if err != nil {
			return VerifyResult{}, err
		}
		if u == nil {
			return VerifyResult{}, core.ErrUnknownUser().WithDetail("recipe_user_id", res.RecipeUserID)
		}

		linked, err := s.linker.CreatePrimaryUserIDOrLinkAccounts(ctx, tenantID, u, nil)
		if err != nil {
			return VerifyResult{}, err
		}

		newSession, err := s.updateSession(ctx, sess, res.RecipeUserID, linked)
		if err != nil {
			return VerifyResult{}, err
		}

		logx.WithContext(ctx).WithFields(logx.Fields{
			"recipe_user_id": res.RecipeUserID,
			"user_id":        linked.ID,
		}).Info("emailverification: email verified")
		return VerifyResult{Status: VerifyOK, User: linked, Session: newSession}, nil
	}
	return VerifyResult{}, core.ErrUnknownStatus(string(res.Status))
}

// IsVerified refreshes and returns the session's verification claim.
func (s *Service) IsVerified(ctx context.Context, sess session.Session) (bool, error) {
	u, err := s.store.GetUser(ctx, sess.UserID())
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, session.ErrUnauthorised().WithDetail("reason", "session user not found")
	}
	v, _, err := s.claim.Fetch(ctx, u, sess.RecipeUserID(), sess.TenantID())
	if err != nil {
		return false, err
	}
	verified, _ := v.(bool)
	return verified, s.setClaim(ctx, sess, verified)
}

// updateSession returns a new session when sess must be replaced, nil
// otherwise.
func (s *Service) updateSession(ctx context.Context, sess session.Session, recipeUserID kernel.RecipeUserID, linked *user.User) (session.Session, error) {
	if sess == nil || sess.RecipeUserID() != recipeUserID {
		return nil, nil
	}
	if sess.UserID() == linked.ID {
		return nil, s.setClaim(ctx, sess, true)
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"recipe_user_id": recipeUserID,
		"from_user_id":   sess.UserID(),
		"to_user_id":     linked.ID,
	}).Info("emailverification: login method moved to another primary, issuing new session")
	return s.sessions.CreateNewSession(ctx, sess.TenantID(), recipeUserID)
}

func (s *Service) sessionLoginMethod(ctx context.Context, sess session.Session) (*user.LoginMethod, error) {
	u, err := s.store.GetUser(ctx, sess.UserID())
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, session.ErrUnauthorised().WithDetail("reason", "session user not found")
	}
	lm, ok := u.LoginMethodFor(sess.RecipeUserID())
	if !ok {
		return nil, session.ErrUnauthorised().WithDetail("reason", "session login method not found")
	}
	return lm, nil
}

func (s *Service) setClaim(ctx context.Context, sess session.Session, verified bool) error {
	if current, present := s.claim.Value(ctx, sess); present && current == verified {
		return nil
	}
	return sess.SetClaimValue(ctx, s.claim, verified)
}

func (s *Service) verifyLink(token string, tenantID kernel.TenantID) (string, error) {
	base, err := url.Parse(s.cfg.WebsiteDomain)
	if err != nil {
		return "", emailverification.ErrNotConfigured("invalid website domain")
	}
	base.Path = s.cfg.VerifyPath
	q := url.Values{}
	q.Set("token", token)
	q.Set("tenantId", tenantID.OrDefault().String())
	base.RawQuery = q.Encode()
	return base.String(), nil
}
