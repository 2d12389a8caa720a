package passwordlesssrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/auth"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/emailverification"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa/mfasrv"
	"github.com/Abraxas-365/authlink/pkg/iam/otp"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpmem"
	"github.com/Abraxas-365/authlink/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/authlink/pkg/iam/passwordless"
	"github.com/Abraxas-365/authlink/pkg/iam/passwordless/passwordlesssrv"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessionmem"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

type outbox struct {
	sent []otp.OTP
}

func (o *outbox) SendOTP(_ context.Context, code *otp.OTP, _ time.Duration) error {
	o.sent = append(o.sent, *code)
	return nil
}

func (o *outbox) last(t *testing.T) otp.OTP {
	t.Helper()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type auditSpy struct {
	kinds []string
}

func (a *auditSpy) LogSignIn(context.Context, kernel.UserID, kernel.TenantID, user.RecipeID, bool) {
	a.kinds = append(a.kinds, "sign_in")
}

func (a *auditSpy) LogAccountCreated(context.Context, kernel.UserID, kernel.TenantID, user.RecipeID) {
	a.kinds = append(a.kinds, "created")
}

func (a *auditSpy) LogAccountLinked(context.Context, kernel.UserID, kernel.RecipeUserID, kernel.TenantID, user.RecipeID) {
	a.kinds = append(a.kinds, "linked")
}

var codeConfig = config.PasswordlessConfig{
	Enabled:        true,
	CodeLength:     6,
	CodeTTL:        15 * time.Minute,
	MaxAttempts:    3,
	ResendCooldown: time.Minute,
}

type env struct {
	core     *coremem.Core
	sessions *session.Manager
	orch     *auth.Orchestrator
	outbox   *outbox
	audit    *auditSpy
	svc      *passwordlesssrv.Service
}

func newEnv() *env {
	c := coremem.New(coremem.WithTestMode())
	sessions := sessionmem.NewProvider(session.NewTokenCodec("secret", "", time.Hour), c)
	engine := accountlinking.NewEngine(
		accountlinking.Deps{Core: c, EmailVerifier: emailverification.SessionClaimVerifier{}},
		accountlinking.Config{ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true)},
	)
	audit := &auditSpy{}
	orch := auth.NewOrchestrator(auth.Deps{
		Core:         c,
		Linking:      engine,
		Sessions:     sessions,
		FirstFactors: mfasrv.NewService(config.MFAConfig{}),
		Audit:        audit,
	})
	box := &outbox{}
	codes := otpsrv.NewService(otpmem.NewRepository(), box, codeConfig)
	return &env{
		core:     c,
		sessions: sessions,
		orch:     orch,
		outbox:   box,
		audit:    audit,
		svc:      passwordlesssrv.NewService(c, orch, codes, codeConfig),
	}
}

// signInUp runs both steps for email and returns the consume result.
func (e *env) signInUp(t *testing.T, email string, sess session.Session) passwordless.ConsumeCodeResult {
	t.Helper()
	ctx := context.Background()
	created, err := e.svc.CreateCode(ctx, passwordless.CreateCodeInput{
		Contact:  passwordless.Contact{Email: email},
		TenantID: kernel.DefaultTenantID,
		Session:  sess,
	})
	require.NoError(t, err)
	require.Equal(t, auth.StatusOK, created.Status, created.Reason)

	res, err := e.svc.ConsumeCode(ctx, passwordless.ConsumeCodeInput{
		DeviceID:      created.DeviceID,
		UserInputCode: e.outbox.last(t).Code,
		TenantID:      kernel.DefaultTenantID,
		Session:       sess,
	})
	require.NoError(t, err)
	return res
}

func TestCreateCode_SendsCode(t *testing.T) {
	e := newEnv()

	res, err := e.svc.CreateCode(context.Background(), passwordless.CreateCodeInput{
		Contact: passwordless.Contact{Email: " Alice@X.com "},
	})
	require.NoError(t, err)
	require.Equal(t, auth.StatusOK, res.Status)
	assert.Equal(t, passwordless.FlowUserInputCode, res.FlowType)
	assert.Equal(t, 15*time.Minute, res.CodeLifetime)
	assert.Equal(t, 3, res.AttemptsAllowed)

	sent := e.outbox.last(t)
	assert.Equal(t, res.DeviceID, sent.DeviceID)
	assert.Equal(t, "alice@x.com", sent.Contact)
	assert.Equal(t, otp.ChannelEmail, sent.Channel)
}

func TestCreateCode_ContactValidation(t *testing.T) {
	e := newEnv()

	tests := []struct {
		name    string
		contact passwordless.Contact
	}{
		{"none", passwordless.Contact{}},
		{"both", passwordless.Contact{Email: "a@x.com", PhoneNumber: "+14155550100"}},
		{"malformed email", passwordless.Contact{Email: "not-an-email"}},
		{"malformed phone", passwordless.Contact{PhoneNumber: "555"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreateCode(context.Background(), passwordless.CreateCodeInput{Contact: tt.contact})
			assert.True(t, errx.IsCode(err, passwordless.CodeBadInput))
		})
	}
	assert.Empty(t, e.outbox.sent)
}

func TestConsumeCode_SignsUpVerifiedPrimary(t *testing.T) {
	e := newEnv()

	res := e.signInUp(t, "alice@x.com", nil)
	require.Equal(t, auth.StatusOK, res.Status)
	assert.True(t, res.CreatedNewRecipeUser)
	require.NotNil(t, res.Session)

	lm := res.User.FirstLoginMethod()
	assert.Equal(t, user.RecipePasswordless, lm.RecipeID)
	assert.True(t, lm.Verified)
	assert.True(t, res.User.IsPrimaryUser)
	assert.Equal(t, lm.RecipeUserID, res.Session.RecipeUserID())
	assert.Equal(t, []string{"created"}, e.audit.kinds)
}

func TestConsumeCode_SecondTimeSignsIn(t *testing.T) {
	e := newEnv()
	first := e.signInUp(t, "alice@x.com", nil)
	require.Equal(t, auth.StatusOK, first.Status)

	second := e.signInUp(t, "ALICE@x.com", nil)
	require.Equal(t, auth.StatusOK, second.Status)
	assert.False(t, second.CreatedNewRecipeUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Session.Handle(), second.Session.Handle())
	assert.Equal(t, []string{"created", "sign_in"}, e.audit.kinds)
}

func TestConsumeCode_SignsInPastUnverifiedLookAlike(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	pl, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID: user.RecipePasswordless,
		Email:    ptrx.String("carol@x.com"),
	})
	require.NoError(t, err)
	_, err = e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID: user.RecipeEmailPassword,
		Email:    ptrx.String("carol@x.com"),
	})
	require.NoError(t, err)

	res := e.signInUp(t, "carol@x.com", nil)
	require.Equal(t, auth.StatusOK, res.Status, "a consumed code proves the email")
	assert.False(t, res.CreatedNewRecipeUser)
	assert.True(t, res.User.HasLoginMethod(pl.FirstLoginMethod().RecipeUserID))
}

func TestConsumeCode_LinksIntoVerifiedPrimary(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tp, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String("bob@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-bob"},
		Verified:   true,
	})
	require.NoError(t, err)
	_, err = e.core.CreatePrimaryUser(ctx, tp.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	res := e.signInUp(t, "bob@x.com", nil)
	require.Equal(t, auth.StatusOK, res.Status)
	assert.True(t, res.CreatedNewRecipeUser)
	assert.Equal(t, tp.ID, res.User.ID)
	assert.Len(t, res.User.LoginMethods, 2)
}

func TestCreateCode_RefusedWhenEmailBelongsToUnverifiedPrimary(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tp, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String("bob@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-bob"},
	})
	require.NoError(t, err)
	_, err = e.core.CreatePrimaryUser(ctx, tp.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	res, err := e.svc.CreateCode(ctx, passwordless.CreateCodeInput{Contact: passwordless.Contact{Email: "bob@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, auth.StatusSignInUpNotAllowed, res.Status)
	assert.Contains(t, res.Reason, "ERR_CODE_002")
	assert.Empty(t, e.outbox.sent)
}

func TestConsumeCode_LinksToSessionUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	alice, err := e.core.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String("alice@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-alice"},
		Verified:   true,
	})
	require.NoError(t, err)
	sess, err := e.sessions.CreateNewSession(ctx, kernel.DefaultTenantID, alice.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	res := e.signInUp(t, "alice@x.com", sess)
	require.Equal(t, auth.StatusOK, res.Status)
	assert.Equal(t, alice.ID, res.User.ID)
	assert.True(t, res.User.IsPrimaryUser)
	assert.Len(t, res.User.LoginMethods, 2)
	assert.Equal(t, sess.Handle(), res.Session.Handle(), "the session user keeps their session")
}

func TestConsumeCode_WrongCodes(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	created, err := e.svc.CreateCode(ctx, passwordless.CreateCodeInput{Contact: passwordless.Contact{Email: "alice@x.com"}})
	require.NoError(t, err)
	consume := func(code string) passwordless.ConsumeCodeResult {
		res, err := e.svc.ConsumeCode(ctx, passwordless.ConsumeCodeInput{DeviceID: created.DeviceID, UserInputCode: code})
		require.NoError(t, err)
		return res
	}

	res := consume("wrong")
	assert.Equal(t, passwordless.StatusIncorrectCode, res.Status)
	assert.Equal(t, 1, res.FailedAttempts)
	assert.Equal(t, 3, res.MaxAttempts)

	res = consume("wrong")
	assert.Equal(t, 2, res.FailedAttempts)

	res = consume("wrong")
	assert.Equal(t, passwordless.StatusRestartFlow, res.Status)

	res = consume(e.outbox.last(t).Code)
	assert.Equal(t, passwordless.StatusRestartFlow, res.Status, "the device is gone once attempts run out")
	assert.Empty(t, e.audit.kinds)
}

func TestConsumeCode_UnknownDeviceRestartsFlow(t *testing.T) {
	res, err := newEnv().svc.ConsumeCode(context.Background(), passwordless.ConsumeCodeInput{
		DeviceID:      "missing",
		UserInputCode: "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, passwordless.StatusRestartFlow, res.Status)
}

func TestConsumeCode_PhoneNumber(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	created, err := e.svc.CreateCode(ctx, passwordless.CreateCodeInput{
		Contact: passwordless.Contact{PhoneNumber: "+1 (415) 555-0100"},
	})
	require.NoError(t, err)
	require.Equal(t, auth.StatusOK, created.Status)
	assert.Equal(t, otp.ChannelPhone, e.outbox.last(t).Channel)

	res, err := e.svc.ConsumeCode(ctx, passwordless.ConsumeCodeInput{
		DeviceID:      created.DeviceID,
		UserInputCode: e.outbox.last(t).Code,
	})
	require.NoError(t, err)
	require.Equal(t, auth.StatusOK, res.Status)
	assert.Equal(t, "+14155550100", *res.User.FirstLoginMethod().PhoneNumber)
	assert.True(t, res.User.FirstLoginMethod().Verified)
}
