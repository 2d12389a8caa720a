package auth

import (
	"context"
	"slices"

	"github.com/Abraxas-365/authlink/pkg/asyncx"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Core         core.Client
	Linking      *accountlinking.Engine
	Sessions     session.Provider
	FirstFactors mfa.FirstFactorValidator
	// MFA is nil when multi-factor auth is not enabled.
	MFA        mfa.Recipe
	Audit      AuditService
	MaxRetries int
}

// Orchestrator runs the checks shared by every sign in/up recipe: deciding
// between a first factor and linking to the session user, gating sign in/up
// on the linking policy, and issuing or reusing the session afterwards.
type Orchestrator struct {
	core         core.Client
	linking      *accountlinking.Engine
	sessions     session.Provider
	firstFactors mfa.FirstFactorValidator
	mfa          mfa.Recipe
	audit        AuditService
	maxRetries   int
}

// NewOrchestrator builds an Orchestrator. A nil Audit discards events.
func NewOrchestrator(deps Deps) *Orchestrator {
	maxRetries := deps.MaxRetries
	if maxRetries <= 0 {
		maxRetries = accountlinking.DefaultMaxRetries
	}
	audit := deps.Audit
	if audit == nil {
		audit = NopAuditService{}
	}
	return &Orchestrator{
		core:         deps.Core,
		linking:      deps.Linking,
		sessions:     deps.Sessions,
		firstFactors: deps.FirstFactors,
		mfa:          deps.MFA,
		audit:        audit,
		maxRetries:   maxRetries,
	}
}

// ============================================================================
// Auth type
// ============================================================================

// CheckAuthTypeAndLinkingStatus decides whether the request is a first
// factor sign in/up or a factor completed for the session user.
func (o *Orchestrator) CheckAuthTypeAndLinkingStatus(ctx context.Context, sess session.Session, linking LinkingWithSession, accountInfo user.AccountInfoWithRecipeID, inputUser *user.User, skipSessionUserUpdateInCore bool) (AuthTypeResult, error) {
	log := logx.WithContext(ctx).WithField("linking", linking.String())

	if sess == nil {
		if linking == LinkRequired {
			return AuthTypeResult{}, session.ErrUnauthorised().
				WithDetail("reason", "linking to the session user requires a session")
		}
		log.Debug("auth: first factor, no session")
		return firstFactor, nil
	}
	if linking == LinkDisabled {
		log.Debug("auth: first factor, linking with the session user disabled")
		return firstFactor, nil
	}

	if !o.linking.LinkingConfigured() {
		if linking == LinkRequired || o.mfa != nil {
			return AuthTypeResult{}, errx.Configuration("account linking must define shouldDoAutomaticAccountLinking to link to the session user or enable MFA")
		}
		log.Debug("auth: first factor, account linking not configured")
		return firstFactor, nil
	}

	if inputUser != nil && inputUser.ID == sess.UserID() {
		log.Debug("auth: input user is already the session user")
		return AuthTypeResult{
			Status:                              StatusOK,
			InputUserAlreadyLinkedToSessionUser: true,
			SessionUser:                         inputUser,
		}, nil
	}

	primary, err := o.linking.GetPrimarySessionUser(ctx, sess, sess.TenantID(), skipSessionUserUpdateInCore)
	if err != nil {
		return AuthTypeResult{}, err
	}
	switch primary.Status {
	case accountlinking.PrimarySessionUserShouldNotLink:
		if linking == LinkRequired {
			return AuthTypeResult{}, ErrBadInput("shouldDoAutomaticAccountLinking returned false when making the session user primary")
		}
		log.Debug("auth: first factor, session user may not become primary")
		return firstFactor, nil
	case accountlinking.PrimarySessionUserAccountInfoAlreadyAssociated:
		return AuthTypeResult{
			Status: StatusLinkingToSessionUserFailed,
			Reason: accountlinking.FailureSessionUserAccountInfoAlreadyAssociated,
		}, nil
	case accountlinking.PrimarySessionUserOK:
	}

	decision, err := o.linking.ShouldDoAutomaticAccountLinking(ctx, accountInfo, primary.SessionUser, sess, sess.TenantID())
	if err != nil {
		return AuthTypeResult{}, err
	}
	if !decision.ShouldAutomaticallyLink {
		if linking == LinkRequired {
			return AuthTypeResult{}, ErrBadInput("shouldDoAutomaticAccountLinking returned false when linking to the session user")
		}
		log.Debug("auth: first factor, policy declined linking to the session user")
		return firstFactor, nil
	}

	log.WithField("session_user_id", primary.SessionUser.ID).Debug("auth: secondary factor")
	return AuthTypeResult{
		Status:                                   StatusOK,
		SessionUser:                              primary.SessionUser,
		LinkingToSessionUserRequiresVerification: decision.ShouldRequireVerification,
	}, nil
}

// ============================================================================
// Pre / post auth checks
// ============================================================================

// PreAuthChecks runs before credentials are created or checked. It filters
// the factors the request may complete and applies the sign in/up policy.
func (o *Orchestrator) PreAuthChecks(ctx context.Context, in PreAuthInput) (PreAuthResult, error) {
	if len(in.FactorIDs) == 0 {
		return PreAuthResult{}, ErrInconsistentInput("no factor ids passed to pre auth checks")
	}
	if !in.IsSignUp && in.AuthenticatingUser == nil {
		return PreAuthResult{}, ErrInconsistentInput("sign in pre auth checks need the authenticating user")
	}

	authType, err := o.CheckAuthTypeAndLinkingStatus(ctx, in.Session, in.LinkingWithSession, in.AccountInfo, in.AuthenticatingUser, in.SkipSessionUserUpdateInCore)
	if err != nil {
		return PreAuthResult{}, err
	}
	if authType.Status != StatusOK {
		return PreAuthResult{Status: authType.Status, Reason: authType.Reason}, nil
	}

	var validFactors []mfa.FactorID
	switch {
	case authType.IsFirstFactor:
		validFactors, err = o.filterFirstFactors(ctx, in.FactorIDs, in.TenantID, in.Session)
	case authType.InputUserAlreadyLinkedToSessionUser:
		validFactors = in.FactorIDs
	default:
		validFactors, err = o.filterSecondFactors(ctx, in.FactorIDs, authType.SessionUser, in.Session, in.TenantID)
	}
	if err != nil {
		return PreAuthResult{}, err
	}

	if in.IsSignUp {
		verifiedInSessionUser := !authType.IsFirstFactor &&
			authType.SessionUser.HasVerifiedContact(in.AccountInfo.AccountInfo)
		allowed, err := o.linking.IsSignUpAllowed(ctx, accountlinking.SignUpAllowedInput{
			NewUser:    in.AccountInfo,
			IsVerified: in.IsVerified || in.SignInVerifiesLoginMethod || verifiedInSessionUser,
			TenantID:   in.TenantID,
			Session:    in.Session,
		})
		if err != nil {
			return PreAuthResult{}, err
		}
		if !allowed {
			return PreAuthResult{Status: StatusSignUpNotAllowed}, nil
		}
	} else {
		allowed, err := o.linking.IsSignInAllowed(ctx, accountlinking.SignInAllowedInput{
			User:                      in.AuthenticatingUser,
			AccountInfo:               in.AccountInfo,
			SignInVerifiesLoginMethod: in.SignInVerifiesLoginMethod,
			TenantID:                  in.TenantID,
			Session:                   in.Session,
		})
		if err != nil {
			return PreAuthResult{}, err
		}
		if !allowed {
			return PreAuthResult{Status: StatusSignInNotAllowed}, nil
		}
	}

	return PreAuthResult{
		Status:         StatusOK,
		ValidFactorIDs: validFactors,
		IsFirstFactor:  authType.IsFirstFactor,
	}, nil
}

func (o *Orchestrator) filterFirstFactors(ctx context.Context, factorIDs []mfa.FactorID, tenantID kernel.TenantID, sess session.Session) ([]mfa.FactorID, error) {
	valid := make([]mfa.FactorID, 0, len(factorIDs))
	for _, id := range factorIDs {
		status, err := o.firstFactors.IsValidFirstFactor(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		switch status {
		case mfa.FirstFactorOK:
			valid = append(valid, id)
		case mfa.FirstFactorTenantNotFound:
			return nil, session.ErrUnauthorised().WithDetail("reason", "tenant not found")
		case mfa.FirstFactorInvalid:
		}
	}
	if len(valid) > 0 {
		return valid, nil
	}
	if sess == nil {
		return nil, session.ErrUnauthorised().
			WithDetail("reason", "a valid session is required to authenticate with secondary factors")
	}
	return nil, ErrBadInput("first factor sign in/up called for a non-first factor with an active session; account linking may be disabled")
}

// filterSecondFactors keeps the factors the session user may set up. Set up
// factors and requirements are fetched once, ahead of the loop.
func (o *Orchestrator) filterSecondFactors(ctx context.Context, factorIDs []mfa.FactorID, sessionUser *user.User, sess session.Session, tenantID kernel.TenantID) ([]mfa.FactorID, error) {
	if o.mfa == nil {
		return factorIDs, nil
	}

	setUpF := asyncx.Run(func() ([]mfa.FactorID, error) {
		return o.mfa.FactorsSetUpForUser(ctx, sessionUser, tenantID)
	})
	requirementsF := asyncx.Run(func() (mfa.RequirementList, error) {
		setUp, err := setUpF.Await()
		if err != nil {
			return nil, err
		}
		return o.mfa.RequirementsForAuth(ctx, sess, sessionUser, setUp, tenantID)
	})

	setUp, err := setUpF.Await()
	if err != nil {
		return nil, err
	}
	requirements, err := requirementsF.Await()
	if err != nil {
		return nil, err
	}

	valid := make([]mfa.FactorID, 0, len(factorIDs))
	var lastErr error
	for _, id := range factorIDs {
		if err := o.mfa.AssertAllowedToSetupFactor(ctx, sess, id, setUp, requirements); err != nil {
			if !session.IsInvalidClaims(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return nil, lastErr
	}
	return valid, nil
}

// PostAuthChecks keeps the session when the authenticated user is the
// session user and issues a new one otherwise. The completed factor is
// recorded when MFA is enabled.
func (o *Orchestrator) PostAuthChecks(ctx context.Context, in PostAuthInput) (PostAuthResult, error) {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"user_id":        in.AuthenticatedUser.ID,
		"recipe_user_id": in.RecipeUserID,
		"factor_id":      in.FactorID,
	})

	sess := in.Session
	if sess == nil || !in.AuthenticatedUser.HasLoginMethod(sess.RecipeUserID()) {
		created, err := o.sessions.CreateNewSession(ctx, in.TenantID, in.RecipeUserID)
		if err != nil {
			return PostAuthResult{}, err
		}
		log.Debug("auth: new session created")
		sess = created
	} else {
		log.Debug("auth: keeping the current session")
	}

	if o.mfa != nil {
		if err := o.mfa.MarkFactorAsCompleteInSession(ctx, sess, in.FactorID); err != nil {
			return PostAuthResult{}, err
		}
	}

	var method user.RecipeID
	if lm, ok := in.AuthenticatedUser.LoginMethodFor(in.RecipeUserID); ok {
		method = lm.RecipeID
	}
	if in.IsSignUp {
		o.audit.LogAccountCreated(ctx, in.AuthenticatedUser.ID, in.TenantID, method)
	} else {
		o.audit.LogSignIn(ctx, in.AuthenticatedUser.ID, in.TenantID, method, true)
	}

	return PostAuthResult{Status: StatusOK, Session: sess, User: in.AuthenticatedUser}, nil
}

// ============================================================================
// Linking after authentication
// ============================================================================

// LinkToSessionIfRequiredElseCreatePrimaryUserIDOrLinkByAccountInfo links a
// freshly created or signed in recipe user to the session user, or by account
// info when this is a first factor. Races restart the decision, up to the
// retry cap.
func (o *Orchestrator) LinkToSessionIfRequiredElseCreatePrimaryUserIDOrLinkByAccountInfo(ctx context.Context, in LinkInput) (LinkOutput, error) {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"recipe_user_id": in.RecipeUserID,
		"tenant_id":      in.TenantID,
	})

	inputUser := in.InputUser
	for attempt := range o.maxRetries {
		if attempt > 0 {
			reloaded, err := o.core.GetUser(ctx, in.RecipeUserID.UserID())
			if err != nil {
				return LinkOutput{}, err
			}
			if reloaded == nil {
				return LinkOutput{}, core.ErrUnknownUser().WithDetail("recipe_user_id", in.RecipeUserID)
			}
			inputUser = reloaded
		}

		lm, ok := inputUser.LoginMethodFor(in.RecipeUserID)
		if !ok {
			return LinkOutput{}, ErrInconsistentInput("recipe user id is not a login method of the input user")
		}

		authType, err := o.CheckAuthTypeAndLinkingStatus(ctx, in.Session, in.LinkingWithSession, lm.AccountInfo(), inputUser, false)
		if err != nil {
			return LinkOutput{}, err
		}
		if authType.Status != StatusOK {
			return LinkOutput{Status: authType.Status, Reason: authType.Reason}, nil
		}

		if authType.IsFirstFactor {
			if !o.linking.LinkingConfigured() {
				return LinkOutput{Status: StatusOK, User: inputUser}, nil
			}
			res, err := o.linking.TryLinkingByAccountInfo(ctx, inputUser, in.Session, in.TenantID)
			if err != nil {
				return LinkOutput{}, err
			}
			if !res.Status.Retryable() {
				return LinkOutput{Status: StatusOK, User: res.User}, nil
			}
			log.WithFields(logx.Fields{"status": res.Status, "attempt": attempt + 1}).
				Debug("auth: retrying link by account info")
			continue
		}

		if authType.InputUserAlreadyLinkedToSessionUser {
			return LinkOutput{Status: StatusOK, User: authType.SessionUser}, nil
		}

		res, err := o.linking.TryLinkingBySession(ctx, accountlinking.SessionLinkInput{
			SessionUser:                 authType.SessionUser,
			AuthLoginMethod:             *lm,
			LinkingRequiresVerification: authType.LinkingToSessionUserRequiresVerification,
		})
		if err != nil {
			return LinkOutput{}, err
		}
		switch res.Status {
		case accountlinking.SessionLinkOK:
			return LinkOutput{Status: StatusOK, User: res.User}, nil
		case accountlinking.SessionLinkFailed:
			if res.Reason == accountlinking.FailureInputUserIsNotPrimary {
				log.WithField("attempt", attempt+1).Debug("auth: session user is no longer primary, retrying")
				continue
			}
			return LinkOutput{Status: StatusLinkingToSessionUserFailed, Reason: res.Reason}, nil
		}
		return LinkOutput{}, errx.Internal("unexpected session link status").WithDetail("status", res.Status)
	}
	return LinkOutput{}, accountlinking.ErrRetriesExhausted("linkToSessionIfRequiredElseCreatePrimaryUserIdOrLinkByAccountInfo")
}

// ============================================================================
// Authenticating user
// ============================================================================

// GetAuthenticatingUserAndAddToCurrentTenantIfRequired finds the user a sign
// in targets. When no login method exists in the tenant but the primary
// session user holds a matching one in another tenant with valid
// credentials, that login method is associated with the tenant first.
func (o *Orchestrator) GetAuthenticatingUserAndAddToCurrentTenantIfRequired(ctx context.Context, in AuthenticatingUserInput) (*AuthenticatingUser, error) {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"recipe_id": in.RecipeID,
		"tenant_id": in.TenantID,
	})

	for attempt := range o.maxRetries {
		users, err := o.core.ListUsersByAccountInfo(ctx, in.TenantID, in.AccountInfo, false)
		if err != nil {
			return nil, err
		}

		var found []AuthenticatingUser
		for i := range users {
			if lm, ok := matchingLoginMethod(users[i].LoginMethods, in.RecipeID, in.AccountInfo); ok {
				found = append(found, AuthenticatingUser{User: &users[i], LoginMethod: lm})
			}
		}
		if len(found) > 1 {
			return nil, ErrMultipleCandidates().WithDetail("tenant_id", in.TenantID)
		}
		if len(found) == 1 {
			return &found[0], nil
		}
		if in.Session == nil {
			return nil, nil
		}

		sessionUser, err := o.core.GetUser(ctx, in.Session.UserID())
		if err != nil {
			return nil, err
		}
		if sessionUser == nil {
			return nil, session.ErrUnauthorised().WithDetail("reason", "session user not found")
		}
		if !sessionUser.IsPrimaryUser {
			return nil, nil
		}

		var candidates []user.LoginMethod
		for _, lm := range sessionUser.LoginMethods {
			if lm.RecipeID == in.RecipeID && lm.Matches(in.AccountInfo) {
				candidates = append(candidates, lm)
			}
		}
		if slices.ContainsFunc(candidates, func(lm user.LoginMethod) bool { return lm.InTenant(in.TenantID) }) {
			log.WithField("attempt", attempt+1).Debug("auth: login method appeared in tenant, retrying")
			continue
		}

		var good []user.LoginMethod
		for _, lm := range candidates {
			if len(lm.TenantIDs) == 0 || in.CheckCredentialsOnTenant == nil {
				continue
			}
			ok, err := in.CheckCredentialsOnTenant(ctx, lm.TenantIDs[0])
			if err != nil {
				return nil, err
			}
			if ok {
				good = append(good, lm)
			}
		}
		if len(good) == 0 {
			return nil, nil
		}
		if len(good) > 1 {
			return nil, ErrMultipleCandidates().WithDetail("session_user_id", sessionUser.ID)
		}

		lm := good[0]
		status, err := o.core.AssociateUserToTenant(ctx, in.TenantID, lm.RecipeUserID)
		if err != nil {
			return nil, err
		}
		switch status {
		case core.AssociateOK:
			lm.TenantIDs = append(slices.Clone(lm.TenantIDs), in.TenantID)
			for i := range sessionUser.LoginMethods {
				if sessionUser.LoginMethods[i].RecipeUserID == lm.RecipeUserID {
					sessionUser.LoginMethods[i].TenantIDs = lm.TenantIDs
				}
			}
			log.WithField("recipe_user_id", lm.RecipeUserID).Info("auth: login method added to tenant")
			return &AuthenticatingUser{User: sessionUser, LoginMethod: lm}, nil
		case core.AssociateUnknownUserID,
			core.AssociateEmailAlreadyExists,
			core.AssociatePhoneNumberAlreadyExists,
			core.AssociateThirdPartyAlreadyExists:
			log.WithFields(logx.Fields{"status": status, "attempt": attempt + 1}).
				Debug("auth: tenant association raced, retrying")
			continue
		case core.AssociationNotAllowed:
			return nil, session.ErrUnauthorised().
				WithDetail("reason", "session user cannot be associated with the current tenant")
		}
		return nil, core.ErrUnknownStatus(string(status))
	}
	return nil, accountlinking.ErrRetriesExhausted("getAuthenticatingUserAndAddToCurrentTenantIfRequired")
}

func matchingLoginMethod(lms []user.LoginMethod, recipeID user.RecipeID, info user.AccountInfo) (user.LoginMethod, bool) {
	for _, lm := range lms {
		if lm.RecipeID == recipeID && lm.Matches(info) {
			return lm, true
		}
	}
	return user.LoginMethod{}, false
}

// ============================================================================
// Session loading
// ============================================================================

// LoadSessionInAuthAPIIfNeeded resolves the request session unless linking
// with it is disabled. A missing token is only an error when linking is
// required.
func (o *Orchestrator) LoadSessionInAuthAPIIfNeeded(ctx context.Context, accessToken string, linking LinkingWithSession) (session.Session, error) {
	if linking == LinkDisabled {
		return nil, nil
	}
	if accessToken == "" {
		if linking == LinkRequired {
			return nil, session.ErrUnauthorised().WithDetail("reason", "linking to the session user requires a session")
		}
		return nil, nil
	}
	return o.sessions.GetSession(ctx, accessToken)
}

