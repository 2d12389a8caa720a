package coremem

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

var _ core.Client = (*Core)(nil)

// Core is an in-process user store. A single mutex serialises every call,
// which makes each promote/link check-and-set atomic.
type Core struct {
	mu sync.Mutex

	records map[kernel.RecipeUserID]*record
	// order keeps insertion order so listings are deterministic.
	order    []kernel.RecipeUserID
	verified map[string]struct{}
	tokens   map[string]verificationToken

	now        func() time.Time
	lastJoined int64
	bcryptCost int
	testMode   bool
}

type record struct {
	lm            user.LoginMethod
	primaryUserID kernel.UserID
	passwordHash  []byte
}

type verificationToken struct {
	recipeUserID kernel.RecipeUserID
	email        string
	tenantID     kernel.TenantID
	expiresAt    time.Time
}

type Option func(*Core)

// WithTestMode enables Reset and lowers the bcrypt cost.
func WithTestMode() Option {
	return func(c *Core) {
		c.testMode = true
		c.bcryptCost = bcrypt.MinCost
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

func WithBcryptCost(cost int) Option {
	return func(c *Core) { c.bcryptCost = cost }
}

func New(opts ...Option) *Core {
	c := &Core{
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(c)
	}
	c.clear()
	return c
}

func (c *Core) clear() {
	c.records = make(map[kernel.RecipeUserID]*record)
	c.order = nil
	c.verified = make(map[string]struct{})
	c.tokens = make(map[string]verificationToken)
	c.lastJoined = 0
}

// Reset drops every user. Refused unless the core runs in test mode.
func (c *Core) Reset() error {
	if !c.testMode {
		return core.ErrResetNotAllowed()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
	return nil
}

// NewRecipeUser describes a login method created outside the password
// recipe, such as a social or passwordless sign up.
type NewRecipeUser struct {
	RecipeID    user.RecipeID
	TenantID    kernel.TenantID
	Email       *string
	PhoneNumber *string
	ThirdParty  *user.ThirdParty
	WebAuthn    *user.WebAuthn
	Verified    bool
}

// CreateRecipeUser stores a standalone non primary recipe user.
func (c *Core) CreateRecipeUser(_ context.Context, in NewRecipeUser) (*user.User, error) {
	info := user.AccountInfo{Email: in.Email, PhoneNumber: in.PhoneNumber, ThirdParty: in.ThirdParty, WebAuthn: in.WebAuthn}
	if info.IsEmpty() {
		return nil, core.ErrInvalidInput().WithDetail("reason", "no account info")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.insert(user.LoginMethod{
		RecipeID:    in.RecipeID,
		TenantIDs:   []kernel.TenantID{in.TenantID.OrDefault()},
		Email:       normalizedEmail(in.Email),
		PhoneNumber: ptrx.Clone(in.PhoneNumber),
		ThirdParty:  ptrx.Clone(in.ThirdParty),
		WebAuthn:    ptrx.Clone(in.WebAuthn),
		Verified:    in.Verified,
	})
	if in.Verified && rec.lm.Email != nil {
		c.verified[verifiedKey(rec.lm.RecipeUserID, *rec.lm.Email)] = struct{}{}
	}
	return c.userOf(rec.lm.RecipeUserID), nil
}

// ============================================================================
// UserReader
// ============================================================================

func (c *Core) GetUser(_ context.Context, userID kernel.UserID) (*user.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userOf(kernel.RecipeUserID(userID)), nil
}

func (c *Core) ListUsersByAccountInfo(_ context.Context, tenantID kernel.TenantID, info user.AccountInfo, doUnion bool) ([]user.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tenantID = tenantID.OrDefault()
	seen := make(map[kernel.UserID]bool)
	var out []user.User
	for _, rid := range c.order {
		rec := c.records[rid]
		if !rec.lm.InTenant(tenantID) || !matches(rec.lm, info, doUnion) {
			continue
		}
		u := c.userOf(rid)
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, *u)
	}
	slices.SortStableFunc(out, func(a, b user.User) int { return cmp.Compare(a.TimeJoined, b.TimeJoined) })
	return out, nil
}

func matches(lm user.LoginMethod, info user.AccountInfo, doUnion bool) bool {
	if doUnion {
		return lm.Matches(info)
	}
	if info.IsEmpty() {
		return false
	}
	if info.Email != nil && !lm.HasSameEmailAs(info.Email) {
		return false
	}
	if info.PhoneNumber != nil && !lm.HasSamePhoneNumberAs(info.PhoneNumber) {
		return false
	}
	if info.ThirdParty != nil && !lm.HasSameThirdPartyInfoAs(info.ThirdParty) {
		return false
	}
	if info.WebAuthn != nil && !lm.HasSameWebAuthnInfoAs(info.WebAuthn) {
		return false
	}
	return true
}

// ============================================================================
// LinkingWriter
// ============================================================================

func (c *Core) CreatePrimaryUser(_ context.Context, recipeUserID kernel.RecipeUserID) (core.CreatePrimaryUserResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[recipeUserID]
	if !ok {
		return core.CreatePrimaryUserResult{}, core.ErrUnknownUser().WithDetail("recipe_user_id", recipeUserID)
	}

	if rec.primaryUserID != "" {
		if rec.primaryUserID == recipeUserID.UserID() {
			return core.CreatePrimaryUserResult{
				Status:            core.CreatePrimaryUserOK,
				User:              c.userOf(recipeUserID),
				WasAlreadyPrimary: true,
			}, nil
		}
		return core.CreatePrimaryUserResult{
			Status:        core.CreatePrimaryUserRecipeUserIDAlreadyLinkedWithPrimary,
			PrimaryUserID: rec.primaryUserID,
			Description:   "This user ID is already linked to another user ID",
		}, nil
	}

	if conflict, found := c.conflictingPrimary(rec.lm, rec.lm.TenantIDs, ""); found {
		return core.CreatePrimaryUserResult{
			Status:        core.CreatePrimaryUserAccountInfoAlreadyAssociated,
			PrimaryUserID: conflict,
			Description:   "This user's account info is already associated with another user ID",
		}, nil
	}

	rec.primaryUserID = recipeUserID.UserID()
	logx.WithField("user_id", recipeUserID).Debug("coremem: primary user created")

	return core.CreatePrimaryUserResult{Status: core.CreatePrimaryUserOK, User: c.userOf(recipeUserID)}, nil
}

func (c *Core) LinkAccounts(_ context.Context, recipeUserID kernel.RecipeUserID, primaryUserID kernel.UserID) (core.LinkAccountsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[recipeUserID]
	if !ok {
		return core.LinkAccountsResult{}, core.ErrUnknownUser().WithDetail("recipe_user_id", recipeUserID)
	}
	primary := c.userOf(kernel.RecipeUserID(primaryUserID))
	if primary == nil {
		return core.LinkAccountsResult{}, core.ErrUnknownUser().WithDetail("primary_user_id", primaryUserID)
	}
	if !primary.IsPrimaryUser {
		return core.LinkAccountsResult{
			Status:      core.LinkAccountsInputUserIsNotPrimary,
			Description: "The input primary user ID is not a primary user",
		}, nil
	}

	if rec.primaryUserID != "" {
		if rec.primaryUserID == primary.ID {
			return core.LinkAccountsResult{
				Status:                core.LinkAccountsOK,
				User:                  primary,
				AccountsAlreadyLinked: true,
			}, nil
		}
		return core.LinkAccountsResult{
			Status:        core.LinkAccountsRecipeUserIDAlreadyLinkedWithAnother,
			PrimaryUserID: rec.primaryUserID,
			User:          c.userOf(kernel.RecipeUserID(rec.primaryUserID)),
			Description:   "The input recipe user ID is already linked to another user ID",
		}, nil
	}

	if conflict, found := c.conflictingPrimary(rec.lm, rec.lm.TenantIDs, primary.ID); found {
		return core.LinkAccountsResult{
			Status:        core.LinkAccountsAccountInfoAlreadyAssociatedWithAnother,
			PrimaryUserID: conflict,
			Description:   "The input recipe user's account info is already associated with another user ID",
		}, nil
	}

	rec.primaryUserID = primary.ID
	logx.WithFields(logx.Fields{"recipe_user_id": recipeUserID, "primary_user_id": primary.ID}).
		Debug("coremem: accounts linked")

	return core.LinkAccountsResult{Status: core.LinkAccountsOK, User: c.userOf(recipeUserID)}, nil
}

// UnlinkAccount detaches a login method from its primary user. When the
// login method carries the primary user's own id and others remain, it is
// deleted instead, since the primary id must keep pointing at them.
func (c *Core) UnlinkAccount(_ context.Context, recipeUserID kernel.RecipeUserID) (core.UnlinkResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[recipeUserID]
	if !ok {
		return core.UnlinkResult{}, core.ErrUnknownUser().WithDetail("recipe_user_id", recipeUserID)
	}
	if rec.primaryUserID == "" {
		return core.UnlinkResult{Status: core.UnlinkOK}, nil
	}

	members := c.membersOf(rec.primaryUserID)
	if len(members) == 1 {
		rec.primaryUserID = ""
		return core.UnlinkResult{Status: core.UnlinkOK}, nil
	}

	if rec.primaryUserID == recipeUserID.UserID() {
		c.delete(recipeUserID)
		return core.UnlinkResult{Status: core.UnlinkOK, WasRecipeUserDeleted: true, WasLinked: true}, nil
	}

	rec.primaryUserID = ""
	return core.UnlinkResult{Status: core.UnlinkOK, WasLinked: true}, nil
}

// ============================================================================
// TenantAssociator
// ============================================================================

func (c *Core) AssociateUserToTenant(_ context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (core.AssociateStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tenantID = tenantID.OrDefault()
	rec, ok := c.records[recipeUserID]
	if !ok {
		return core.AssociateUnknownUserID, nil
	}
	if rec.lm.InTenant(tenantID) {
		return core.AssociateOK, nil
	}

	for _, rid := range c.order {
		other := c.records[rid]
		if rid == recipeUserID || other.lm.RecipeID != rec.lm.RecipeID || !other.lm.InTenant(tenantID) {
			continue
		}
		switch {
		case rec.lm.ThirdParty != nil && other.lm.HasSameThirdPartyInfoAs(rec.lm.ThirdParty):
			return core.AssociateThirdPartyAlreadyExists, nil
		case rec.lm.RecipeID != user.RecipeThirdParty && other.lm.HasSameEmailAs(rec.lm.Email):
			return core.AssociateEmailAlreadyExists, nil
		case other.lm.HasSamePhoneNumberAs(rec.lm.PhoneNumber):
			return core.AssociatePhoneNumberAlreadyExists, nil
		}
	}

	if rec.primaryUserID != "" {
		if _, found := c.conflictingPrimary(rec.lm, []kernel.TenantID{tenantID}, rec.primaryUserID); found {
			return core.AssociationNotAllowed, nil
		}
	}

	rec.lm.TenantIDs = append(rec.lm.TenantIDs, tenantID)
	return core.AssociateOK, nil
}

// ============================================================================
// EmailPasswordStore
// ============================================================================

func (c *Core) CreateEmailPasswordUser(_ context.Context, tenantID kernel.TenantID, email, password string) (core.SignUpResult, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return core.SignUpResult{}, core.ErrInvalidInput().WithDetail("reason", "email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.bcryptCost)
	if err != nil {
		return core.SignUpResult{}, errx.Wrap(err, "hash password", errx.TypeInternal)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tenantID = tenantID.OrDefault()
	if c.findEmailPassword(tenantID, email) != nil {
		return core.SignUpResult{Status: core.SignUpEmailAlreadyExists}, nil
	}

	rec := c.insert(user.LoginMethod{
		RecipeID:  user.RecipeEmailPassword,
		TenantIDs: []kernel.TenantID{tenantID},
		Email:     &email,
	})
	rec.passwordHash = hash

	return core.SignUpResult{
		Status:       core.SignUpOK,
		User:         c.userOf(rec.lm.RecipeUserID),
		RecipeUserID: rec.lm.RecipeUserID,
	}, nil
}

func (c *Core) VerifyEmailPasswordCredentials(_ context.Context, tenantID kernel.TenantID, email, password string) (core.SignInResult, error) {
	c.mu.Lock()
	rec := c.findEmailPassword(tenantID.OrDefault(), user.NormalizeEmail(email))
	var hash []byte
	if rec != nil {
		hash = rec.passwordHash
	}
	c.mu.Unlock()

	if rec == nil || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return core.SignInResult{Status: core.SignInWrongCredentials}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.userOf(rec.lm.RecipeUserID)
	if u == nil {
		return core.SignInResult{Status: core.SignInWrongCredentials}, nil
	}
	return core.SignInResult{Status: core.SignInOK, User: u, RecipeUserID: rec.lm.RecipeUserID}, nil
}

func (c *Core) findEmailPassword(tenantID kernel.TenantID, email string) *record {
	for _, rid := range c.order {
		rec := c.records[rid]
		if rec.lm.RecipeID == user.RecipeEmailPassword && rec.lm.InTenant(tenantID) && rec.lm.HasSameEmailAs(&email) {
			return rec
		}
	}
	return nil
}

// ============================================================================
// PasswordlessStore
// ============================================================================

func (c *Core) SignInUpPasswordlessUser(_ context.Context, tenantID kernel.TenantID, info user.AccountInfo) (core.PasswordlessResult, error) {
	info = user.AccountInfo{Email: normalizedEmail(info.Email), PhoneNumber: ptrx.Clone(info.PhoneNumber)}
	if (info.Email == nil) == (info.PhoneNumber == nil) {
		return core.PasswordlessResult{}, core.ErrInvalidInput().WithDetail("reason", "exactly one of email or phone number is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tenantID = tenantID.OrDefault()
	rec := c.findPasswordless(tenantID, info)
	created := rec == nil
	if created {
		rec = c.insert(user.LoginMethod{
			RecipeID:    user.RecipePasswordless,
			TenantIDs:   []kernel.TenantID{tenantID},
			Email:       info.Email,
			PhoneNumber: info.PhoneNumber,
			Verified:    true,
		})
	}
	if rec.lm.Email != nil {
		c.verified[verifiedKey(rec.lm.RecipeUserID, *rec.lm.Email)] = struct{}{}
	}

	return core.PasswordlessResult{
		Status:               core.PasswordlessOK,
		CreatedNewRecipeUser: created,
		User:                 c.userOf(rec.lm.RecipeUserID),
		RecipeUserID:         rec.lm.RecipeUserID,
	}, nil
}

func (c *Core) findPasswordless(tenantID kernel.TenantID, info user.AccountInfo) *record {
	for _, rid := range c.order {
		rec := c.records[rid]
		if rec.lm.RecipeID != user.RecipePasswordless || !rec.lm.InTenant(tenantID) {
			continue
		}
		if info.Email != nil && rec.lm.HasSameEmailAs(info.Email) {
			return rec
		}
		if info.PhoneNumber != nil && rec.lm.HasSamePhoneNumberAs(info.PhoneNumber) {
			return rec
		}
	}
	return nil
}

// ============================================================================
// EmailVerificationStore
// ============================================================================

const verificationTokenTTL = 24 * time.Hour

func (c *Core) CreateEmailVerificationToken(_ context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) (core.VerificationTokenResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	email = user.NormalizeEmail(email)
	if _, ok := c.verified[verifiedKey(recipeUserID, email)]; ok {
		return core.VerificationTokenResult{Status: core.VerificationTokenEmailAlreadyVerified}, nil
	}

	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	c.tokens[token] = verificationToken{
		recipeUserID: recipeUserID,
		email:        email,
		tenantID:     tenantID.OrDefault(),
		expiresAt:    c.now().Add(verificationTokenTTL),
	}
	return core.VerificationTokenResult{Status: core.VerificationTokenOK, Token: token}, nil
}

func (c *Core) VerifyEmailUsingToken(_ context.Context, tenantID kernel.TenantID, token string) (core.VerifyEmailResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tokens[token]
	if !ok || t.tenantID != tenantID.OrDefault() || c.now().After(t.expiresAt) {
		return core.VerifyEmailResult{Status: core.VerifyEmailInvalidToken}, nil
	}

	for k, other := range c.tokens {
		if other.recipeUserID == t.recipeUserID && other.email == t.email {
			delete(c.tokens, k)
		}
	}
	c.verified[verifiedKey(t.recipeUserID, t.email)] = struct{}{}

	return core.VerifyEmailResult{Status: core.VerifyEmailOK, RecipeUserID: t.recipeUserID, Email: t.email}, nil
}

func (c *Core) IsEmailVerified(_ context.Context, recipeUserID kernel.RecipeUserID, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.verified[verifiedKey(recipeUserID, user.NormalizeEmail(email))]
	return ok, nil
}

func (c *Core) MarkEmailAsVerified(_ context.Context, _ kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified[verifiedKey(recipeUserID, user.NormalizeEmail(email))] = struct{}{}
	return nil
}

func verifiedKey(rid kernel.RecipeUserID, email string) string {
	return rid.String() + "|" + user.NormalizeEmail(email)
}

// ============================================================================
// Internals (caller holds c.mu)
// ============================================================================

func (c *Core) insert(lm user.LoginMethod) *record {
	lm.RecipeUserID = kernel.RecipeUserID(uuid.NewString())
	lm.TimeJoined = c.nextJoined()
	rec := &record{lm: lm}
	c.records[lm.RecipeUserID] = rec
	c.order = append(c.order, lm.RecipeUserID)
	return rec
}

func (c *Core) delete(rid kernel.RecipeUserID) {
	delete(c.records, rid)
	c.order = slices.DeleteFunc(c.order, func(id kernel.RecipeUserID) bool { return id == rid })
}

// nextJoined returns a strictly increasing millisecond timestamp so that
// the oldest user is always well defined.
func (c *Core) nextJoined() int64 {
	ts := c.now().UnixMilli()
	if ts <= c.lastJoined {
		ts = c.lastJoined + 1
	}
	c.lastJoined = ts
	return ts
}

func (c *Core) membersOf(primaryID kernel.UserID) []*record {
	var out []*record
	for _, rid := range c.order {
		if rec := c.records[rid]; rec.primaryUserID == primaryID {
			out = append(out, rec)
		}
	}
	return out
}

// conflictingPrimary finds a primary user other than except holding any
// identity of lm in one of tenants.
func (c *Core) conflictingPrimary(lm user.LoginMethod, tenants []kernel.TenantID, except kernel.UserID) (kernel.UserID, bool) {
	info := lm.AccountInfo().AccountInfo
	for _, rid := range c.order {
		other := c.records[rid]
		if other.primaryUserID == "" || other.primaryUserID == except || rid == lm.RecipeUserID {
			continue
		}
		if !slices.ContainsFunc(tenants, other.lm.InTenant) {
			continue
		}
		if other.lm.Matches(info) {
			return other.primaryUserID, true
		}
	}
	return "", false
}

// userOf resolves a recipe user id or primary user id to the full user.
func (c *Core) userOf(id kernel.RecipeUserID) *user.User {
	primaryID := id.UserID()
	rec, ok := c.records[id]
	if ok {
		primaryID = rec.primaryUserID
	}
	if ok && rec.primaryUserID == "" {
		return &user.User{
			ID:           id.UserID(),
			TimeJoined:   rec.lm.TimeJoined,
			TenantIDs:    slices.Clone(rec.lm.TenantIDs),
			LoginMethods: []user.LoginMethod{c.loginMethod(rec)},
		}
	}

	// A primary id can outlive its own login method after an unlink.
	members := c.membersOf(primaryID)
	if len(members) == 0 {
		return nil
	}
	u := &user.User{ID: primaryID, IsPrimaryUser: true}
	for _, m := range members {
		lm := c.loginMethod(m)
		if u.TimeJoined == 0 || lm.TimeJoined < u.TimeJoined {
			u.TimeJoined = lm.TimeJoined
		}
		for _, t := range lm.TenantIDs {
			if !slices.Contains(u.TenantIDs, t) {
				u.TenantIDs = append(u.TenantIDs, t)
			}
		}
		u.LoginMethods = append(u.LoginMethods, lm)
	}
	return u
}

func (c *Core) loginMethod(rec *record) user.LoginMethod {
	lm := rec.lm
	if lm.Email != nil {
		_, lm.Verified = c.verified[verifiedKey(lm.RecipeUserID, *lm.Email)]
	}
	return lm.Clone()
}

func normalizedEmail(email *string) *string {
	if email == nil {
		return nil
	}
	return ptrx.String(user.NormalizeEmail(*email))
}
