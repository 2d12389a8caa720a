package emailverificationsrv_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification/emailverificationsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessionmem"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/notifx"
	"github.com/Abraxas-365/authlink/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

type mailerSpy struct {
	sent []notifx.VerificationEmail
	err  error
}

func (m *mailerSpy) SendEmailVerification(_ context.Context, v notifx.VerificationEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, v)
	return nil
}

type env struct {
	core     *coremem.Core
	sessions *session.Manager
	mailer   *mailerSpy
	svc      *emailverificationsrv.Service
}

var testConfig = config.EmailVerificationConfig{
	Mode:          "REQUIRED",
	WebsiteDomain: "https://app.example.com",
	VerifyPath:    "/auth/verify-email",
}

func newEnv(mailer emailverificationsrv.Mailer) *env {
	return newEnvWithConfig(mailer, testConfig)
}

func newEnvWithConfig(mailer emailverificationsrv.Mailer, cfg config.EmailVerificationConfig) *env {
	c := coremem.New(coremem.WithTestMode())
	engine := accountlinking.NewEngine(
		accountlinking.Deps{Core: c, EmailVerifier: emailverification.SessionClaimVerifier{}},
		accountlinking.Config{ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true)},
	)
	spy, _ := mailer.(*mailerSpy)
	if mailer == nil {
		spy = &mailerSpy{}
		mailer = spy
	}
	sessions := sessionmem.NewProvider(session.NewTokenCodec("secret", "", time.Hour), c)
	svc := emailverificationsrv.NewService(c, engine, sessions, mailer, cfg, "Authlink")
	sessions.RegisterClaim(svc.Claim())
	return &env{core: c, sessions: sessions, mailer: spy, svc: svc}
}

func (e *env) passwordUserSession(t *testing.T, email string) (*user.User, session.Session) {
	t.Helper()
	ctx := context.Background()
	res, err := e.core.CreateEmailPasswordUser(ctx, kernel.DefaultTenantID, email, "password1")
	require.NoError(t, err)
	sess, err := e.sessions.CreateNewSession(ctx, kernel.DefaultTenantID, res.RecipeUserID)
	require.NoError(t, err)
	return res.User, sess
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestSendEmail_SendsLink(t *testing.T) {
	e := newEnv(nil)
	_, sess := e.passwordUserSession(t, "Alice@X.com")

	verified, present := e.svc.Claim().Value(context.Background(), sess)
	assert.True(t, present)
	assert.False(t, verified)

	status, err := e.svc.SendEmail(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.SendOK, status)

	require.Len(t, e.mailer.sent, 1)
	sent := e.mailer.sent[0]
	assert.Equal(t, "alice@x.com", sent.To)
	assert.Equal(t, "Authlink", sent.AppName)

	link, err := url.Parse(sent.Link)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", link.Host)
	assert.Equal(t, "/auth/verify-email", link.Path)
	assert.Equal(t, "public", link.Query().Get("tenantId"))
	assert.NotEmpty(t, link.Query().Get("token"))
}

func TestSendEmail_AlreadyVerified(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	u, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID: user.RecipePasswordless,
		Email:    ptrx.String("alice@x.com"),
		Verified: true,
	})
	require.NoError(t, err)
	sess, err := e.sessions.CreateNewSession(ctx, kernel.DefaultTenantID, u.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	status, err := e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.SendEmailAlreadyVerified, status)
	assert.Empty(t, e.mailer.sent)
	assert.NoError(t, sess.AssertClaims(ctx, emailverification.IsVerified()))
}

func TestSendEmail_MailerFailure(t *testing.T) {
	e := newEnv(&mailerSpy{err: errors.New("smtp down")})
	_, sess := e.passwordUserSession(t, "alice@x.com")

	_, err := e.svc.SendEmail(context.Background(), sess)
	assert.True(t, errx.IsCode(err, emailverification.CodeSendFailed))
}

func TestSendEmail_ThroughNotifxClient(t *testing.T) {
	console := notifxconsole.NewConsoleProvider()
	e := newEnv(notifx.NewClient(console, "noreply@example.com"))
	_, sess := e.passwordUserSession(t, "alice@x.com")

	status, err := e.svc.SendEmail(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.SendOK, status)

	sent := console.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"alice@x.com"}, sent[0].To)
	assert.Equal(t, "noreply@example.com", sent[0].From)
	assert.Contains(t, sent[0].HTMLBody, "https://app.example.com/auth/verify-email")
}

func TestVerifyEmail_PromotesUserAndRefreshesClaim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	alice, sess := e.passwordUserSession(t, "alice@x.com")

	_, err := e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)

	res, err := e.svc.VerifyEmail(ctx, kernel.DefaultTenantID, tokenFrom(t, e.mailer.sent[0].Link), sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyOK, res.Status)
	require.NotNil(t, res.User)
	assert.Equal(t, alice.ID, res.User.ID)
	assert.True(t, res.User.IsPrimaryUser)
	assert.True(t, res.User.FirstLoginMethod().Verified)
	assert.NoError(t, sess.AssertClaims(ctx, emailverification.IsVerified()))
}

func TestVerifyEmail_LinksToVerifiedPrimary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	google, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String("alice@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
		Verified:   true,
	})
	require.NoError(t, err)
	_, err = e.core.CreatePrimaryUser(ctx, google.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	_, sess := e.passwordUserSession(t, "alice@x.com")
	_, err = e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)

	res, err := e.svc.VerifyEmail(ctx, kernel.DefaultTenantID, tokenFrom(t, e.mailer.sent[0].Link), nil)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyOK, res.Status)
	assert.Equal(t, google.ID, res.User.ID)
	assert.Len(t, res.User.LoginMethods, 2)
}

func TestVerifyEmail_ReplacesSessionMovedToAnotherPrimary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	google, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String("alice@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
		Verified:   true,
	})
	require.NoError(t, err)
	_, err = e.core.CreatePrimaryUser(ctx, google.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	alice, sess := e.passwordUserSession(t, "alice@x.com")
	_, err = e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)

	res, err := e.svc.VerifyEmail(ctx, kernel.DefaultTenantID, tokenFrom(t, e.mailer.sent[0].Link), sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyOK, res.Status)
	assert.Equal(t, google.ID, res.User.ID)
	require.NotNil(t, res.Session)
	assert.Equal(t, google.ID, res.Session.UserID())
	assert.Equal(t, alice.FirstLoginMethod().RecipeUserID, res.Session.RecipeUserID())
	assert.NotEqual(t, sess.Handle(), res.Session.Handle())
	assert.NoError(t, res.Session.AssertClaims(ctx, emailverification.IsVerified()))
}

type linkerSpy struct {
	accountlinking.AccountLinker
	sessions []session.Session
}

func (l *linkerSpy) CreatePrimaryUserIDOrLinkAccounts(ctx context.Context, tenantID kernel.TenantID, u *user.User, sess session.Session) (*user.User, error) {
	l.sessions = append(l.sessions, sess)
	return l.AccountLinker.CreatePrimaryUserIDOrLinkAccounts(ctx, tenantID, u, sess)
}

func TestVerifyEmail_LinksWithoutCallerSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	_, sess := e.passwordUserSession(t, "alice@x.com")
	_, err := e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)

	spy := &linkerSpy{AccountLinker: accountlinking.NewEngine(
		accountlinking.Deps{Core: e.core},
		accountlinking.Config{ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true)},
	)}
	svc := emailverificationsrv.NewService(e.core, spy, e.sessions, e.mailer, testConfig, "Authlink")

	res, err := svc.VerifyEmail(ctx, kernel.DefaultTenantID, tokenFrom(t, e.mailer.sent[0].Link), sess)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyOK, res.Status)
	assert.Nil(t, res.Session, "session user unchanged, no new session")
	require.Len(t, spy.sessions, 1)
	assert.Nil(t, spy.sessions[0])
}

func TestVerifyEmail_BadTokens(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)

	res, err := e.svc.VerifyEmail(ctx, kernel.DefaultTenantID, "nope", nil)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyInvalidToken, res.Status)

	_, err = e.svc.VerifyEmail(ctx, kernel.DefaultTenantID, "", nil)
	assert.True(t, errx.IsCode(err, emailverification.CodeMissingToken))
}

func TestVerifyEmail_TokenIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	_, sess := e.passwordUserSession(t, "alice@x.com")
	_, err := e.svc.SendEmail(ctx, sess)
	require.NoError(t, err)

	res, err := e.svc.VerifyEmail(ctx, "other", tokenFrom(t, e.mailer.sent[0].Link), nil)
	require.NoError(t, err)
	assert.Equal(t, emailverificationsrv.VerifyInvalidToken, res.Status)
}

func TestIsVerified_RefreshesClaim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	_, sess := e.passwordUserSession(t, "alice@x.com")

	verified, err := e.svc.IsVerified(ctx, sess)
	require.NoError(t, err)
	assert.False(t, verified)

	require.NoError(t, e.core.MarkEmailAsVerified(ctx, kernel.DefaultTenantID, sess.RecipeUserID(), "alice@x.com"))

	verified, err = e.svc.IsVerified(ctx, sess)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.NoError(t, sess.AssertClaims(ctx, emailverification.IsVerified()))
}

func TestSessionClaimVerifier_ForcesClaimFalse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(nil)
	_, sess := e.passwordUserSession(t, "alice@x.com")
	require.NoError(t, e.core.MarkEmailAsVerified(ctx, kernel.DefaultTenantID, sess.RecipeUserID(), "alice@x.com"))
	_, err := e.svc.IsVerified(ctx, sess)
	require.NoError(t, err)

	err = emailverification.SessionClaimVerifier{}.RequireVerification(ctx, sess)
	assert.True(t, session.IsInvalidClaims(err))
	v, present := e.svc.Claim().Value(ctx, sess)
	assert.True(t, present)
	assert.False(t, v)
}
