package accountlinking_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/session/sessionmem"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

// spyCore counts mutations and can inject link statuses.
type spyCore struct {
	*coremem.Core
	creates atomic.Int32
	links   atomic.Int32
	// linkStatus, when set, answers LinkAccounts for the first n calls.
	linkStatus core.LinkAccountsStatus
	linkFails  int32
	markedIn   []kernel.TenantID
}

func (s *spyCore) CreatePrimaryUser(ctx context.Context, id kernel.RecipeUserID) (core.CreatePrimaryUserResult, error) {
	s.creates.Add(1)
	return s.Core.CreatePrimaryUser(ctx, id)
}

func (s *spyCore) LinkAccounts(ctx context.Context, id kernel.RecipeUserID, primary kernel.UserID) (core.LinkAccountsResult, error) {
	n := s.links.Add(1)
	if s.linkStatus != "" && (s.linkFails < 0 || n <= s.linkFails) {
		return core.LinkAccountsResult{Status: s.linkStatus}, nil
	}
	return s.Core.LinkAccounts(ctx, id, primary)
}

func (s *spyCore) MarkEmailAsVerified(ctx context.Context, tenantID kernel.TenantID, id kernel.RecipeUserID, email string) error {
	s.markedIn = append(s.markedIn, tenantID)
	return s.Core.MarkEmailAsVerified(ctx, tenantID, id, email)
}

func (s *spyCore) mutations() int32 { return s.creates.Load() + s.links.Load() }

type fakeVerifier struct{ calls atomic.Int32 }

func (f *fakeVerifier) RequireVerification(context.Context, session.Session) error {
	f.calls.Add(1)
	return session.ErrInvalidClaims("st-ev")
}

func newSpy() *spyCore {
	return &spyCore{Core: coremem.New(coremem.WithTestMode())}
}

func newEngine(c core.Client, policy accountlinking.ShouldLinkFunc) *accountlinking.Engine {
	return accountlinking.NewEngine(
		accountlinking.Deps{Core: c, EmailVerifier: &fakeVerifier{}},
		accountlinking.Config{ShouldDoAutomaticAccountLinking: policy},
	)
}

func emailUser(t *testing.T, c *spyCore, email string, verified bool) *user.User {
	t.Helper()
	u, err := c.CreateRecipeUser(context.Background(), coremem.NewRecipeUser{
		RecipeID: user.RecipePasswordless,
		Email:    ptrx.String(email),
		Verified: verified,
	})
	require.NoError(t, err)
	return u
}

func promote(t *testing.T, c *spyCore, u *user.User) *user.User {
	t.Helper()
	res, err := c.Core.CreatePrimaryUser(context.Background(), u.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)
	require.Equal(t, core.CreatePrimaryUserOK, res.Status)
	return res.User
}

func neverLink(context.Context, user.AccountInfoWithRecipeID, *user.User, session.Session, kernel.TenantID) (accountlinking.LinkDecision, error) {
	return accountlinking.NoLink, nil
}

// ============================================================================
// TryLinkAccounts
// ============================================================================

func TestTryLinkAccounts_PromotesOlderAndLinksNewer(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	u1 := emailUser(t, c, "a@x.com", false)
	u2 := emailUser(t, c, "a@x.com", false)
	e := newEngine(c, accountlinking.AlwaysLink(false))

	res, err := e.TryLinkAccounts(ctx, u2, u1, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkOK, res.Status)
	assert.Equal(t, u1.ID, res.User.ID)
	assert.True(t, res.User.IsPrimaryUser)
	assert.Len(t, res.User.LoginMethods, 2)
}

func TestTryLinkAccounts_NoLinkWhenNeitherIsVerified(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	u1 := emailUser(t, c, "a@x.com", false)
	u2 := emailUser(t, c, "a@x.com", false)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	res, err := e.TryLinkAccounts(ctx, u1, u2, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkNoLink, res.Status)
	assert.Equal(t, u1.ID, res.User.ID)
	assert.Zero(t, c.mutations())
}

func TestTryLinkAccounts_FallsBackToNewer(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	older := emailUser(t, c, "a@x.com", false)
	newer := emailUser(t, c, "a@x.com", true)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	res, err := e.TryLinkAccounts(ctx, older, newer, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkNoLink, res.Status, "the older user is unverified and cannot be linked")

	got, err := c.GetUser(ctx, newer.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrimaryUser)
	assert.Zero(t, c.links.Load())
}

func TestTryLinkAccounts_SessionVouchesForIdentity(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	primary := promote(t, c, emailUser(t, c, "a@x.com", true))
	target := emailUser(t, c, "a@x.com", false)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	sessions := sessionmem.NewProvider(session.NewTokenCodec("s", "", time.Hour), c)
	sess, err := sessions.CreateNewSession(ctx, "", primary.FirstLoginMethod().RecipeUserID)
	require.NoError(t, err)

	res, err := e.TryLinkAccounts(ctx, target, primary, sess, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkOK, res.Status)
	assert.Len(t, res.User.LoginMethods, 2)
}

func TestTryLinkAccounts_TwoPrimariesIsInvariantViolation(t *testing.T) {
	c := newSpy()
	p1 := promote(t, c, emailUser(t, c, "a@x.com", true))
	p2 := promote(t, c, emailUser(t, c, "b@x.com", true))
	e := newEngine(c, accountlinking.AlwaysLink(false))

	_, err := e.TryLinkAccounts(context.Background(), p1, p2, nil, kernel.DefaultTenantID)
	assert.True(t, errx.IsCode(err, accountlinking.CodeInvariantViolation))
}

// ============================================================================
// TryLinkingByAccountInfo
// ============================================================================

func TestTryLinkingByAccountInfo_NoopWhenLinkingDisabled(t *testing.T) {
	for name, policy := range map[string]accountlinking.ShouldLinkFunc{
		"no policy":    nil,
		"always false": neverLink,
	} {
		t.Run(name, func(t *testing.T) {
			c := newSpy()
			emailUser(t, c, "a@x.com", true)
			input := emailUser(t, c, "a@x.com", true)
			e := newEngine(c, policy)

			res, err := e.TryLinkingByAccountInfo(context.Background(), input, nil, kernel.DefaultTenantID)
			require.NoError(t, err)
			assert.Equal(t, accountlinking.LinkOK, res.Status)
			assert.Equal(t, input, res.User)
			assert.Zero(t, c.mutations())
		})
	}
}

func TestTryLinkingByAccountInfo_LinksToExistingPrimary(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	primary := promote(t, c, emailUser(t, c, "a@x.com", true))
	input := emailUser(t, c, "A@x.com", true)

	var linked []kernel.RecipeUserID
	e := accountlinking.NewEngine(accountlinking.Deps{Core: c}, accountlinking.Config{
		ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true),
		OnAccountLinked: func(_ context.Context, p *user.User, lm user.LoginMethod) {
			assert.Equal(t, primary.ID, p.ID)
			linked = append(linked, lm.RecipeUserID)
		},
	})

	res, err := e.TryLinkingByAccountInfo(ctx, input, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkOK, res.Status)
	assert.Equal(t, primary.ID, res.User.ID)
	assert.Equal(t, []kernel.RecipeUserID{input.FirstLoginMethod().RecipeUserID}, linked)
}

func TestTryLinkingByAccountInfo_VerificationGate(t *testing.T) {
	c := newSpy()
	promote(t, c, emailUser(t, c, "a@x.com", true))
	c.creates.Store(0)
	input := emailUser(t, c, "a@x.com", false)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	res, err := e.TryLinkingByAccountInfo(context.Background(), input, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkNoLink, res.Status)
	assert.Zero(t, c.mutations())
}

func TestTryLinkingByAccountInfo_PromotesLoneUser(t *testing.T) {
	c := newSpy()
	input := emailUser(t, c, "solo@x.com", true)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	res, err := e.TryLinkingByAccountInfo(context.Background(), input, nil, kernel.DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.LinkOK, res.Status)
	assert.True(t, res.User.IsPrimaryUser)
	assert.Equal(t, input.ID, res.User.ID)
}

func TestTryLinkingByAccountInfo_MultiplePrimariesIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	promote(t, c, emailUser(t, c, "a@x.com", true))
	phoneUser, err := c.CreateRecipeUser(ctx, coremem.NewRecipeUser{RecipeID: user.RecipePasswordless, PhoneNumber: ptrx.String("+15550001")})
	require.NoError(t, err)
	promote(t, c, phoneUser)

	input, err := c.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:    user.RecipePasswordless,
		Email:       ptrx.String("a@x.com"),
		PhoneNumber: ptrx.String("+15550001"),
	})
	require.NoError(t, err)

	_, err = newEngine(c, accountlinking.AlwaysLink(false)).TryLinkingByAccountInfo(ctx, input, nil, kernel.DefaultTenantID)
	assert.True(t, errx.IsCode(err, accountlinking.CodeInvariantViolation))
}

// ============================================================================
// CreatePrimaryUserIDOrLinkAccounts
// ============================================================================

func TestCreatePrimaryUserIDOrLinkAccounts_RetriesRace(t *testing.T) {
	c := newSpy()
	primary := promote(t, c, emailUser(t, c, "a@x.com", true))
	input := emailUser(t, c, "a@x.com", true)
	c.linkStatus, c.linkFails = core.LinkAccountsInputUserIsNotPrimary, 1
	e := newEngine(c, accountlinking.AlwaysLink(true))

	got, err := e.CreatePrimaryUserIDOrLinkAccounts(context.Background(), kernel.DefaultTenantID, input, nil)
	require.NoError(t, err)
	assert.Equal(t, primary.ID, got.ID)
	assert.EqualValues(t, 2, c.links.Load())
}

func TestCreatePrimaryUserIDOrLinkAccounts_RetriesAreBounded(t *testing.T) {
	c := newSpy()
	promote(t, c, emailUser(t, c, "a@x.com", true))
	input := emailUser(t, c, "a@x.com", true)
	c.linkStatus, c.linkFails = core.LinkAccountsInputUserIsNotPrimary, -1
	e := accountlinking.NewEngine(accountlinking.Deps{Core: c}, accountlinking.Config{
		ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true),
		MaxRetries:                      5,
	})

	_, err := e.CreatePrimaryUserIDOrLinkAccounts(context.Background(), kernel.DefaultTenantID, input, nil)
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, accountlinking.CodeRetriesExhausted))
	assert.EqualValues(t, 5, c.links.Load())
}

func TestNewEngine_DefaultRetryCap(t *testing.T) {
	e := newEngine(newSpy(), nil)
	assert.Equal(t, accountlinking.DefaultMaxRetries, e.MaxRetries())
	assert.False(t, e.LinkingConfigured())
}

// ============================================================================
// Session linking
// ============================================================================

func TestTryLinkingBySession(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	sessionUser := promote(t, c, emailUser(t, c, "a@x.com", true))
	e := newEngine(c, accountlinking.AlwaysLink(true))

	t.Run("unverified other identity needs verification", func(t *testing.T) {
		other := emailUser(t, c, "b@x.com", false)
		res, err := e.TryLinkingBySession(ctx, accountlinking.SessionLinkInput{
			SessionUser:                 sessionUser,
			AuthLoginMethod:             other.FirstLoginMethod(),
			LinkingRequiresVerification: true,
		})
		require.NoError(t, err)
		assert.Equal(t, accountlinking.SessionLinkFailed, res.Status)
		assert.Equal(t, accountlinking.FailureEmailVerificationRequired, res.Reason)
	})

	t.Run("session user vouches for the same email", func(t *testing.T) {
		same := emailUser(t, c, "a@x.com", false)
		res, err := e.TryLinkingBySession(ctx, accountlinking.SessionLinkInput{
			SessionUser:                 sessionUser,
			AuthLoginMethod:             same.FirstLoginMethod(),
			LinkingRequiresVerification: true,
		})
		require.NoError(t, err)
		require.Equal(t, accountlinking.SessionLinkOK, res.Status)
		assert.Equal(t, sessionUser.ID, res.User.ID)

		verified, err := c.IsEmailVerified(ctx, same.FirstLoginMethod().RecipeUserID, "a@x.com")
		require.NoError(t, err)
		assert.True(t, verified, "linked login method inherits the verified email")
	})

	t.Run("session user lost primary status", func(t *testing.T) {
		c.linkStatus, c.linkFails = core.LinkAccountsInputUserIsNotPrimary, -1
		defer func() { c.linkStatus = "" }()

		other := emailUser(t, c, "c@x.com", true)
		res, err := e.TryLinkingBySession(ctx, accountlinking.SessionLinkInput{
			SessionUser:     sessionUser,
			AuthLoginMethod: other.FirstLoginMethod(),
		})
		require.NoError(t, err)
		assert.Equal(t, accountlinking.FailureInputUserIsNotPrimary, res.Reason)
	})
}

func TestGetPrimarySessionUser(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, verified bool) (*spyCore, session.Session) {
		c := newSpy()
		u := emailUser(t, c, "a@x.com", verified)
		sessions := sessionmem.NewProvider(session.NewTokenCodec("s", "", time.Hour), c)
		sess, err := sessions.CreateNewSession(ctx, "", u.FirstLoginMethod().RecipeUserID)
		require.NoError(t, err)
		return c, sess
	}

	t.Run("promotes the session user", func(t *testing.T) {
		c, sess := setup(t, false)
		res, err := newEngine(c, accountlinking.AlwaysLink(false)).GetPrimarySessionUser(ctx, sess, "", false)
		require.NoError(t, err)
		assert.Equal(t, accountlinking.PrimarySessionUserOK, res.Status)
		assert.True(t, res.SessionUser.IsPrimaryUser)
	})

	t.Run("skip update leaves the user alone", func(t *testing.T) {
		c, sess := setup(t, false)
		res, err := newEngine(c, accountlinking.AlwaysLink(false)).GetPrimarySessionUser(ctx, sess, "", true)
		require.NoError(t, err)
		assert.False(t, res.SessionUser.IsPrimaryUser)
		assert.Zero(t, c.mutations())
	})

	t.Run("policy declines", func(t *testing.T) {
		c, sess := setup(t, true)
		res, err := newEngine(c, neverLink).GetPrimarySessionUser(ctx, sess, "", false)
		require.NoError(t, err)
		assert.Equal(t, accountlinking.PrimarySessionUserShouldNotLink, res.Status)
	})

	t.Run("unverified session user fails the verification claim", func(t *testing.T) {
		c, sess := setup(t, false)
		verifier := &fakeVerifier{}
		e := accountlinking.NewEngine(accountlinking.Deps{Core: c, EmailVerifier: verifier}, accountlinking.Config{
			ShouldDoAutomaticAccountLinking: accountlinking.AlwaysLink(true),
		})

		_, err := e.GetPrimarySessionUser(ctx, sess, "", false)
		assert.True(t, session.IsInvalidClaims(err))
		assert.EqualValues(t, 1, verifier.calls.Load())
		assert.Zero(t, c.mutations())
	})

	t.Run("vanished session user is unauthorised", func(t *testing.T) {
		c, sess := setup(t, true)
		require.NoError(t, c.Reset())
		_, err := newEngine(c, accountlinking.AlwaysLink(false)).GetPrimarySessionUser(ctx, sess, "", false)
		assert.True(t, session.IsUnauthorised(err))
	})
}

// ============================================================================
// Email change
// ============================================================================

func TestIsEmailChangeAllowed(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	promote(t, c, emailUser(t, c, "a@x.com", true))
	p2 := promote(t, c, emailUser(t, c, "b@x.com", true))
	emailUser(t, c, "c@x.com", false)
	loner := emailUser(t, c, "d@x.com", false)
	e := newEngine(c, accountlinking.AlwaysLink(true))

	res, err := e.IsEmailChangeAllowed(ctx, p2, "a@x.com", true, nil)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.EmailChangeResult{Reason: accountlinking.EmailChangePrimaryUserConflict}, res)

	res, err = e.IsEmailChangeAllowed(ctx, p2, "c@x.com", false, nil)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.EmailChangeAccountTakeoverRisk, res.Reason)

	res, err = e.IsEmailChangeAllowed(ctx, p2, "c@x.com", true, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = e.IsEmailChangeAllowed(ctx, loner, "a@x.com", false, nil)
	require.NoError(t, err)
	assert.Equal(t, accountlinking.EmailChangeAccountTakeoverRisk, res.Reason)

	res, err = e.IsEmailChangeAllowed(ctx, loner, "new@x.com", false, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLinkStatus_Retryable(t *testing.T) {
	assert.True(t, accountlinking.LinkInputUserIsNotPrimary.Retryable())
	assert.True(t, accountlinking.LinkAccountInfoAlreadyAssociated.Retryable())
	assert.True(t, accountlinking.LinkRecipeUserIDAlreadyLinkedWithPrimary.Retryable())
	assert.False(t, accountlinking.LinkOK.Retryable())
	assert.False(t, accountlinking.LinkNoLink.Retryable())
	assert.False(t, accountlinking.LinkRecipeUserIDAlreadyLinkedWithAnother.Retryable())
}

func TestVerifyEmailForRecipeUserIfLinkedAccountsAreVerified_UsesLoginMethodTenant(t *testing.T) {
	ctx := context.Background()
	c := newSpy()
	verified, err := c.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID: user.RecipePasswordless, TenantID: "acme", Email: ptrx.String("a@x.com"), Verified: true,
	})
	require.NoError(t, err)
	primary := promote(t, c, verified)
	other, err := c.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID: user.RecipeThirdParty, TenantID: "acme", Email: ptrx.String("a@x.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
	})
	require.NoError(t, err)
	rid := other.FirstLoginMethod().RecipeUserID
	linked, err := c.Core.LinkAccounts(ctx, rid, primary.ID)
	require.NoError(t, err)
	require.Equal(t, core.LinkAccountsOK, linked.Status)

	e := newEngine(c, accountlinking.AlwaysLink(true))
	require.NoError(t, e.VerifyEmailForRecipeUserIfLinkedAccountsAreVerified(ctx, rid))

	assert.Equal(t, []kernel.TenantID{"acme"}, c.markedIn)
	ok, err := c.IsEmailVerified(ctx, rid, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}
