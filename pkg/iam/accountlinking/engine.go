package accountlinking

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// DefaultMaxRetries caps every retry loop that re-derives a linking decision.
const DefaultMaxRetries = 300

// Deps are the collaborators of an Engine.
type Deps struct {
	Core core.Client
	// EmailVerifier may be nil when email verification is not enabled.
	EmailVerifier EmailVerifier
}

// Config holds the linking policy and its hooks.
type Config struct {
	// ShouldDoAutomaticAccountLinking is the host application's linking
	// policy. When nil, accounts are never linked automatically.
	ShouldDoAutomaticAccountLinking ShouldLinkFunc
	OnAccountLinked                 OnAccountLinkedFunc
	MaxRetries                      int
}

// Engine decides primary user promotion and link outcomes. It keeps no user
// state between calls; every decision reloads what it needs from the core.
type Engine struct {
	core       core.Client
	verifier   EmailVerifier
	shouldLink ShouldLinkFunc
	onLinked   OnAccountLinkedFunc
	maxRetries int
}

var _ AccountLinker = (*Engine)(nil)

// NewEngine builds an Engine. A non positive MaxRetries means DefaultMaxRetries.
func NewEngine(deps Deps, cfg Config) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Engine{
		core:       deps.Core,
		verifier:   deps.EmailVerifier,
		shouldLink: cfg.ShouldDoAutomaticAccountLinking,
		onLinked:   cfg.OnAccountLinked,
		maxRetries: maxRetries,
	}
}

// LinkingConfigured reports whether the host application defined a linking
// policy.
func (e *Engine) LinkingConfigured() bool {
	return e.shouldLink != nil
}

func (e *Engine) MaxRetries() int {
	return e.maxRetries
}

// ShouldDoAutomaticAccountLinking asks the host policy. Without a policy the
// answer is always NoLink.
func (e *Engine) ShouldDoAutomaticAccountLinking(ctx context.Context, info user.AccountInfoWithRecipeID, existing *user.User, sess session.Session, tenantID kernel.TenantID) (LinkDecision, error) {
	if e.shouldLink == nil {
		return NoLink, nil
	}
	return e.shouldLink(ctx, info, existing, sess, tenantID)
}

// ============================================================================
// Primary user promotion
// ============================================================================

// noLinkReason tells a policy decline apart from a missing verification.
type noLinkReason int

const (
	noLinkNone noLinkReason = iota
	noLinkDeclined
	noLinkUnverified
)

// ShouldBecomePrimaryUser reports whether the policy allows u to become a
// primary user.
func (e *Engine) ShouldBecomePrimaryUser(ctx context.Context, u *user.User, tenantID kernel.TenantID, sess session.Session) (bool, error) {
	ok, _, err := e.canBecomePrimary(ctx, u, tenantID, sess)
	return ok, err
}

func (e *Engine) canBecomePrimary(ctx context.Context, u *user.User, tenantID kernel.TenantID, sess session.Session) (bool, noLinkReason, error) {
	lm := u.FirstLoginMethod()
	decision, err := e.ShouldDoAutomaticAccountLinking(ctx, lm.AccountInfo(), nil, sess, tenantID)
	if err != nil {
		return false, noLinkNone, err
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{"user_id": u.ID, "tenant_id": tenantID})
	if !decision.ShouldAutomaticallyLink {
		log.Debug("linking: user should not become primary, policy declined")
		return false, noLinkDeclined, nil
	}
	if decision.ShouldRequireVerification && !lm.Verified {
		log.Debug("linking: user should not become primary, login method is not verified")
		return false, noLinkUnverified, nil
	}
	return true, noLinkNone, nil
}

func (e *Engine) createPrimaryUser(ctx context.Context, u *user.User) (LinkResult, error) {
	res, err := e.core.CreatePrimaryUser(ctx, u.FirstLoginMethod().RecipeUserID)
	if err != nil {
		return LinkResult{}, err
	}

	switch res.Status {
	case core.CreatePrimaryUserOK:
		logx.WithContext(ctx).WithField("user_id", res.User.ID).Debug("linking: primary user created")
		return LinkResult{Status: LinkOK, User: res.User}, nil
	case core.CreatePrimaryUserRecipeUserIDAlreadyLinkedWithPrimary:
		return LinkResult{Status: LinkRecipeUserIDAlreadyLinkedWithPrimary, PrimaryUserID: res.PrimaryUserID}, nil
	case core.CreatePrimaryUserAccountInfoAlreadyAssociated:
		return LinkResult{Status: LinkAccountInfoAlreadyAssociated, PrimaryUserID: res.PrimaryUserID}, nil
	}
	return LinkResult{}, core.ErrUnknownStatus(string(res.Status))
}

// ============================================================================
// Candidate lookup
// ============================================================================

// GetPrimaryUserThatCanBeLinkedToRecipeUserID returns the primary user the
// recipe user could be linked to, or nil.
func (e *Engine) GetPrimaryUserThatCanBeLinkedToRecipeUserID(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (*user.User, error) {
	u, err := e.loadUser(ctx, recipeUserID.UserID())
	if err != nil {
		return nil, err
	}
	return e.primaryLinkableTo(ctx, tenantID, u)
}

// GetOldestUserThatCanBeLinkedToRecipeUser returns the user with the lowest
// TimeJoined sharing an identity with the recipe user, the recipe user
// itself included. The first user listed wins a tie.
func (e *Engine) GetOldestUserThatCanBeLinkedToRecipeUser(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (*user.User, error) {
	u, err := e.loadUser(ctx, recipeUserID.UserID())
	if err != nil {
		return nil, err
	}
	return e.oldestLinkableTo(ctx, tenantID, u)
}

func (e *Engine) loadUser(ctx context.Context, id kernel.UserID) (*user.User, error) {
	u, err := e.core.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, core.ErrUnknownUser().WithDetail("user_id", id)
	}
	return u, nil
}

func (e *Engine) primaryLinkableTo(ctx context.Context, tenantID kernel.TenantID, u *user.User) (*user.User, error) {
	if u.IsPrimaryUser {
		return u, nil
	}
	users, err := e.core.ListUsersByAccountInfo(ctx, tenantID, u.FirstLoginMethod().AccountInfo().AccountInfo, true)
	if err != nil {
		return nil, err
	}

	var primary *user.User
	for i := range users {
		if !users[i].IsPrimaryUser {
			continue
		}
		if primary != nil {
			return nil, ErrInvariantViolation().
				WithDetail("user_id", u.ID).
				WithDetail("primary_user_ids", []kernel.UserID{primary.ID, users[i].ID})
		}
		primary = &users[i]
	}
	return primary, nil
}

func (e *Engine) oldestLinkableTo(ctx context.Context, tenantID kernel.TenantID, u *user.User) (*user.User, error) {
	if u.IsPrimaryUser {
		return u, nil
	}
	users, err := e.core.ListUsersByAccountInfo(ctx, tenantID, u.FirstLoginMethod().AccountInfo().AccountInfo, true)
	if err != nil {
		return nil, err
	}

	var oldest *user.User
	for i := range users {
		if oldest == nil || users[i].TimeJoined < oldest.TimeJoined {
			oldest = &users[i]
		}
	}
	return oldest, nil
}

// ============================================================================
// Linking by account info
// ============================================================================

// TryLinkingByAccountInfo links a freshly authenticated user to the account
// sharing its identity, or promotes it to primary. A race status is returned
// as is; the caller decides again from scratch.
func (e *Engine) TryLinkingByAccountInfo(ctx context.Context, input *user.User, sess session.Session, tenantID kernel.TenantID) (LinkResult, error) {
	if input.IsPrimaryUser || !e.LinkingConfigured() {
		return LinkResult{Status: LinkOK, User: input}, nil
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{"user_id": input.ID, "tenant_id": tenantID})

	primary, err := e.primaryLinkableTo(ctx, tenantID, input)
	if err != nil {
		return LinkResult{}, err
	}
	if primary != nil {
		log.WithField("primary_user_id", primary.ID).Debug("linking: trying to link to existing primary user")
		res, reason, err := e.tryLinkAccounts(ctx, input, primary, sess, tenantID)
		return settle(input, res, reason), err
	}

	oldest, err := e.oldestLinkableTo(ctx, tenantID, input)
	if err != nil {
		return LinkResult{}, err
	}
	if oldest != nil && oldest.ID != input.ID {
		log.WithField("oldest_user_id", oldest.ID).Debug("linking: trying to link with oldest user sharing identity")
		res, reason, err := e.tryLinkAccounts(ctx, input, oldest, sess, tenantID)
		return settle(input, res, reason), err
	}

	ok, reason, err := e.canBecomePrimary(ctx, input, tenantID, sess)
	if err != nil {
		return LinkResult{}, err
	}
	if !ok {
		return settle(input, LinkResult{Status: LinkNoLink, User: input}, reason), nil
	}
	return e.createPrimaryUser(ctx, input)
}

// settle turns a policy decline into a no-op success. A missing verification
// stays NO_LINK.
func settle(input *user.User, res LinkResult, reason noLinkReason) LinkResult {
	if res.Status == LinkNoLink && reason == noLinkDeclined {
		return LinkResult{Status: LinkOK, User: input}
	}
	return res
}

// TryLinkAccounts links a and b. When neither is primary the older one is
// promoted first, falling back to the newer one. NO_LINK is a steady state,
// not an error.
func (e *Engine) TryLinkAccounts(ctx context.Context, a, b *user.User, sess session.Session, tenantID kernel.TenantID) (LinkResult, error) {
	res, _, err := e.tryLinkAccounts(ctx, a, b, sess, tenantID)
	return res, err
}

func (e *Engine) tryLinkAccounts(ctx context.Context, a, b *user.User, sess session.Session, tenantID kernel.TenantID) (LinkResult, noLinkReason, error) {
	var primary, target *user.User

	switch {
	case a.IsPrimaryUser && b.IsPrimaryUser:
		if a.ID == b.ID {
			return LinkResult{Status: LinkOK, User: a}, noLinkNone, nil
		}
		return LinkResult{}, noLinkNone, ErrInvariantViolation().
			WithDetail("primary_user_ids", []kernel.UserID{a.ID, b.ID})
	case a.IsPrimaryUser:
		primary, target = a, b
	case b.IsPrimaryUser:
		primary, target = b, a
	default:
		older, newer := a, b
		if b.TimeJoined < a.TimeJoined {
			older, newer = b, a
		}

		reason := noLinkDeclined
		for _, candidate := range []*user.User{older, newer} {
			ok, why, err := e.canBecomePrimary(ctx, candidate, tenantID, sess)
			if err != nil {
				return LinkResult{}, noLinkNone, err
			}
			if !ok {
				if why == noLinkUnverified {
					reason = noLinkUnverified
				}
				continue
			}

			res, err := e.createPrimaryUser(ctx, candidate)
			if err != nil || res.Status != LinkOK {
				return res, noLinkNone, err
			}
			primary = res.User
			if candidate == older {
				target = newer
			} else {
				target = older
			}
			break
		}

		if primary == nil {
			logx.WithContext(ctx).WithFields(logx.Fields{"user_a": a.ID, "user_b": b.ID}).
				Debug("linking: neither user can become primary")
			return LinkResult{Status: LinkNoLink, User: a}, reason, nil
		}
	}

	noLink := func(reason noLinkReason) (LinkResult, noLinkReason, error) {
		u := a
		if primary.HasLoginMethod(a.FirstLoginMethod().RecipeUserID) {
			u = primary
		}
		return LinkResult{Status: LinkNoLink, User: u}, reason, nil
	}

	lm := target.FirstLoginMethod()
	decision, err := e.ShouldDoAutomaticAccountLinking(ctx, lm.AccountInfo(), primary, sess, tenantID)
	if err != nil {
		return LinkResult{}, noLinkNone, err
	}
	if !decision.ShouldAutomaticallyLink {
		return noLink(noLinkDeclined)
	}
	if decision.ShouldRequireVerification && !lm.Verified {
		vouched, err := e.sessionVouchesFor(ctx, sess, primary, lm)
		if err != nil {
			return LinkResult{}, noLinkNone, err
		}
		if !vouched {
			logx.WithContext(ctx).WithField("recipe_user_id", lm.RecipeUserID).
				Debug("linking: not linking, login method is not verified")
			return noLink(noLinkUnverified)
		}
	}

	res, err := e.linkAccounts(ctx, lm, primary)
	return res, noLinkNone, err
}

// sessionVouchesFor reports whether the session's user already holds a
// verified login method with the same contact identity as lm.
func (e *Engine) sessionVouchesFor(ctx context.Context, sess session.Session, primary *user.User, lm user.LoginMethod) (bool, error) {
	if sess == nil {
		return false, nil
	}
	sessionUser := primary
	if sess.UserID() != primary.ID {
		u, err := e.core.GetUser(ctx, sess.UserID())
		if err != nil {
			return false, err
		}
		if u == nil {
			return false, nil
		}
		sessionUser = u
	}
	return sessionUser.HasVerifiedContact(lm.AccountInfo().AccountInfo), nil
}

func (e *Engine) linkAccounts(ctx context.Context, lm user.LoginMethod, primary *user.User) (LinkResult, error) {
	res, err := e.core.LinkAccounts(ctx, lm.RecipeUserID, primary.ID)
	if err != nil {
		return LinkResult{}, err
	}

	switch res.Status {
	case core.LinkAccountsOK:
		u := res.User
		if !res.AccountsAlreadyLinked {
			if u, err = e.afterLink(ctx, u, lm); err != nil {
				return LinkResult{}, err
			}
		}
		return LinkResult{Status: LinkOK, User: u}, nil
	case core.LinkAccountsRecipeUserIDAlreadyLinkedWithAnother:
		u := res.User
		if u == nil {
			if u, err = e.loadUser(ctx, res.PrimaryUserID); err != nil {
				return LinkResult{}, err
			}
		}
		return LinkResult{Status: LinkRecipeUserIDAlreadyLinkedWithAnother, User: u, PrimaryUserID: res.PrimaryUserID}, nil
	case core.LinkAccountsInputUserIsNotPrimary:
		return LinkResult{Status: LinkInputUserIsNotPrimary}, nil
	case core.LinkAccountsAccountInfoAlreadyAssociatedWithAnother:
		return LinkResult{Status: LinkAccountInfoAlreadyAssociated, PrimaryUserID: res.PrimaryUserID}, nil
	}
	return LinkResult{}, core.ErrUnknownStatus(string(res.Status))
}

func (e *Engine) afterLink(ctx context.Context, primary *user.User, lm user.LoginMethod) (*user.User, error) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"primary_user_id": primary.ID,
		"recipe_user_id":  lm.RecipeUserID,
	}).Info("linking: accounts linked")

	marked, err := e.verifyIfLinkedAccountsAreVerified(ctx, primary, lm.RecipeUserID)
	if err != nil {
		return nil, err
	}
	if marked {
		if primary, err = e.loadUser(ctx, primary.ID); err != nil {
			return nil, err
		}
	}

	if e.onLinked != nil {
		linked := lm
		if fresh, ok := primary.LoginMethodFor(lm.RecipeUserID); ok {
			linked = *fresh
		}
		e.onLinked(ctx, primary, linked)
	}
	return primary, nil
}

// ============================================================================
// Linking by session
// ============================================================================

// TryLinkingBySession links the login method that just authenticated to the
// primary session user.
func (e *Engine) TryLinkingBySession(ctx context.Context, in SessionLinkInput) (SessionLinkResult, error) {
	lm := in.AuthLoginMethod
	sessionUserHasVerifiedInfo := in.SessionUser.HasVerifiedContact(lm.AccountInfo().AccountInfo)

	if in.LinkingRequiresVerification && !lm.Verified && !sessionUserHasVerifiedInfo {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"session_user_id": in.SessionUser.ID,
			"recipe_user_id":  lm.RecipeUserID,
		}).Debug("linking: session linking requires verification")
		return sessionLinkFailed(FailureEmailVerificationRequired), nil
	}

	res, err := e.linkAccounts(ctx, lm, in.SessionUser)
	if err != nil {
		return SessionLinkResult{}, err
	}

	switch res.Status {
	case LinkOK:
		return SessionLinkResult{Status: SessionLinkOK, User: res.User}, nil
	case LinkRecipeUserIDAlreadyLinkedWithAnother:
		return sessionLinkFailed(FailureRecipeUserIDAlreadyLinkedWithAnother), nil
	case LinkInputUserIsNotPrimary:
		return sessionLinkFailed(FailureInputUserIsNotPrimary), nil
	case LinkAccountInfoAlreadyAssociated:
		return sessionLinkFailed(FailureAccountInfoAlreadyAssociated), nil
	case LinkNoLink, LinkRecipeUserIDAlreadyLinkedWithPrimary:
	}
	return SessionLinkResult{}, errx.Internal("unexpected link status while linking to session user").
		WithDetail("status", res.Status)
}

func sessionLinkFailed(reason SessionLinkFailure) SessionLinkResult {
	return SessionLinkResult{Status: SessionLinkFailed, Reason: reason}
}

// GetPrimarySessionUser loads the session user and promotes it to primary
// if the policy allows. When the policy requires verification the session's
// email verification claim is forced to false and asserted, so the caller
// gets the usual invalid claim error. With skipUpdateInCore the user is
// returned without being promoted.
func (e *Engine) GetPrimarySessionUser(ctx context.Context, sess session.Session, tenantID kernel.TenantID, skipUpdateInCore bool) (PrimarySessionUserResult, error) {
	sessionUser, err := e.core.GetUser(ctx, sess.UserID())
	if err != nil {
		return PrimarySessionUserResult{}, err
	}
	if sessionUser == nil {
		return PrimarySessionUserResult{}, session.ErrUnauthorised().WithDetail("reason", "session user not found")
	}
	if sessionUser.IsPrimaryUser {
		return PrimarySessionUserResult{Status: PrimarySessionUserOK, SessionUser: sessionUser}, nil
	}

	lm := sessionUser.FirstLoginMethod()
	decision, err := e.ShouldDoAutomaticAccountLinking(ctx, lm.AccountInfo(), nil, sess, tenantID)
	if err != nil {
		return PrimarySessionUserResult{}, err
	}
	if !decision.ShouldAutomaticallyLink {
		return PrimarySessionUserResult{Status: PrimarySessionUserShouldNotLink}, nil
	}
	if decision.ShouldRequireVerification && !lm.Verified {
		if e.verifier == nil {
			return PrimarySessionUserResult{}, errx.Configuration("linking requires email verification but it is not enabled")
		}
		if err := e.verifier.RequireVerification(ctx, sess); err != nil {
			return PrimarySessionUserResult{}, err
		}
		return PrimarySessionUserResult{}, errx.Internal("email verification claim passed after being set to false")
	}
	if skipUpdateInCore {
		return PrimarySessionUserResult{Status: PrimarySessionUserOK, SessionUser: sessionUser}, nil
	}

	res, err := e.createPrimaryUser(ctx, sessionUser)
	if err != nil {
		return PrimarySessionUserResult{}, err
	}

	switch res.Status {
	case LinkOK:
		return PrimarySessionUserResult{Status: PrimarySessionUserOK, SessionUser: res.User}, nil
	case LinkRecipeUserIDAlreadyLinkedWithPrimary:
		// The session user was linked to someone else since the session
		// was created.
		return PrimarySessionUserResult{}, session.ErrUnauthorised().WithDetail("reason", "session user was linked to another user")
	case LinkAccountInfoAlreadyAssociated:
		return PrimarySessionUserResult{Status: PrimarySessionUserAccountInfoAlreadyAssociated}, nil
	case LinkNoLink, LinkRecipeUserIDAlreadyLinkedWithAnother, LinkInputUserIsNotPrimary:
	}
	return PrimarySessionUserResult{}, errx.Internal("unexpected status while promoting session user").
		WithDetail("status", res.Status)
}

// ============================================================================
// Helpers for recipes without a sign in/up boundary
// ============================================================================

// CreatePrimaryUserIDOrLinkAccounts retries TryLinkingByAccountInfo until it
// settles and returns the resulting user.
func (e *Engine) CreatePrimaryUserIDOrLinkAccounts(ctx context.Context, tenantID kernel.TenantID, u *user.User, sess session.Session) (*user.User, error) {
	recipeUserID := u.FirstLoginMethod().RecipeUserID

	for attempt := range e.maxRetries {
		res, err := e.TryLinkingByAccountInfo(ctx, u, sess, tenantID)
		if err != nil {
			return nil, err
		}

		switch res.Status {
		case LinkOK, LinkNoLink, LinkRecipeUserIDAlreadyLinkedWithAnother:
			return res.User, nil
		case LinkRecipeUserIDAlreadyLinkedWithPrimary, LinkInputUserIsNotPrimary, LinkAccountInfoAlreadyAssociated:
			logx.WithContext(ctx).WithFields(logx.Fields{
				"recipe_user_id": recipeUserID,
				"status":         res.Status,
				"attempt":        attempt + 1,
			}).Debug("linking: retrying after race")
		}

		if u, err = e.loadUser(ctx, recipeUserID.UserID()); err != nil {
			return nil, err
		}
	}
	return nil, ErrRetriesExhausted("createPrimaryUserIdOrLinkAccounts")
}

// VerifyEmailForRecipeUserIfLinkedAccountsAreVerified marks the recipe
// user's email as verified when another login method of its primary user
// holds the same verified email.
func (e *Engine) VerifyEmailForRecipeUserIfLinkedAccountsAreVerified(ctx context.Context, recipeUserID kernel.RecipeUserID) error {
	u, err := e.core.GetUser(ctx, recipeUserID.UserID())
	if err != nil || u == nil {
		return err
	}
	_, err = e.verifyIfLinkedAccountsAreVerified(ctx, u, recipeUserID)
	return err
}

func (e *Engine) verifyIfLinkedAccountsAreVerified(ctx context.Context, u *user.User, recipeUserID kernel.RecipeUserID) (bool, error) {
	if e.verifier == nil || !u.IsPrimaryUser {
		return false, nil
	}
	lm, ok := u.LoginMethodFor(recipeUserID)
	if !ok || lm.Email == nil || lm.Verified {
		return false, nil
	}

	for _, other := range u.LoginMethods {
		if other.RecipeUserID == recipeUserID || !other.Verified || !other.HasSameEmailAs(lm.Email) {
			continue
		}
		tenantID := kernel.DefaultTenantID
		if len(lm.TenantIDs) > 0 {
			tenantID = lm.TenantIDs[0]
		}
		if err := e.core.MarkEmailAsVerified(ctx, tenantID, recipeUserID, *lm.Email); err != nil {
			return false, err
		}
		logx.WithContext(ctx).WithField("recipe_user_id", recipeUserID).
			Debug("linking: email verified through linked account")
		return true, nil
	}
	return false, nil
}

// IsEmailChangeAllowed reports whether u may change its email to newEmail
// without breaking the uniqueness of primary identities or opening an
// account takeover path.
func (e *Engine) IsEmailChangeAllowed(ctx context.Context, u *user.User, newEmail string, isVerified bool, sess session.Session) (EmailChangeResult, error) {
	email := user.NormalizeEmail(newEmail)
	tenantIDs := u.TenantIDs
	if len(tenantIDs) == 0 {
		tenantIDs = []kernel.TenantID{kernel.DefaultTenantID}
	}

	for _, tenantID := range tenantIDs {
		existing, err := e.core.ListUsersByAccountInfo(ctx, tenantID, user.AccountInfo{Email: &email}, false)
		if err != nil {
			return EmailChangeResult{}, err
		}

		var others []user.User
		var otherPrimary *user.User
		for i := range existing {
			if existing[i].ID == u.ID {
				continue
			}
			others = append(others, existing[i])
			if !existing[i].IsPrimaryUser {
				continue
			}
			if otherPrimary != nil {
				return EmailChangeResult{}, ErrInvariantViolation().WithDetail("email", email)
			}
			otherPrimary = &existing[i]
		}

		if u.IsPrimaryUser {
			if otherPrimary != nil {
				return EmailChangeResult{Reason: EmailChangePrimaryUserConflict}, nil
			}
			if isVerified || len(others) == 0 {
				continue
			}
			return EmailChangeResult{Reason: EmailChangeAccountTakeoverRisk}, nil
		}

		if otherPrimary == nil {
			continue
		}
		info := user.AccountInfoWithRecipeID{
			RecipeID:    u.FirstLoginMethod().RecipeID,
			AccountInfo: user.AccountInfo{Email: &email},
		}
		decision, err := e.ShouldDoAutomaticAccountLinking(ctx, info, otherPrimary, sess, tenantID)
		if err != nil {
			return EmailChangeResult{}, err
		}
		if decision.ShouldAutomaticallyLink && decision.ShouldRequireVerification && !isVerified {
			return EmailChangeResult{Reason: EmailChangeAccountTakeoverRisk}, nil
		}
	}
	return EmailChangeResult{Allowed: true}, nil
}

// UnlinkAccount detaches a login method from its primary user.
func (e *Engine) UnlinkAccount(ctx context.Context, recipeUserID kernel.RecipeUserID) (core.UnlinkResult, error) {
	res, err := e.core.UnlinkAccount(ctx, recipeUserID)
	if err != nil {
		return core.UnlinkResult{}, err
	}
	logx.WithContext(ctx).WithFields(logx.Fields{
		"recipe_user_id": recipeUserID,
		"was_linked":     res.WasLinked,
		"was_deleted":    res.WasRecipeUserDeleted,
	}).Info("linking: account unlinked")
	return res, nil
}
