package coremem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/core/coremem"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

var ctx = context.Background()

func signUp(t *testing.T, c *coremem.Core, tenant kernel.TenantID, email string) *user.User {
	t.Helper()
	res, err := c.CreateEmailPasswordUser(ctx, tenant, email, "password123")
	require.NoError(t, err)
	require.Equal(t, core.SignUpOK, res.Status)
	return res.User
}

func thirdParty(t *testing.T, c *coremem.Core, email, tpUserID string, verified bool) *user.User {
	t.Helper()
	u, err := c.CreateRecipeUser(ctx, coremem.NewRecipeUser{
		RecipeID:   user.RecipeThirdParty,
		Email:      ptrx.String(email),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: tpUserID},
		Verified:   verified,
	})
	require.NoError(t, err)
	return u
}

func TestCore_EmailPassword(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())

	u := signUp(t, c, "public", "Alice@Example.com")
	assert.False(t, u.IsPrimaryUser)
	assert.Equal(t, "alice@example.com", *u.LoginMethods[0].Email)

	dup, err := c.CreateEmailPasswordUser(ctx, "public", "alice@example.com", "x")
	require.NoError(t, err)
	assert.Equal(t, core.SignUpEmailAlreadyExists, dup.Status)

	otherTenant, err := c.CreateEmailPasswordUser(ctx, "t1", "alice@example.com", "x")
	require.NoError(t, err)
	assert.Equal(t, core.SignUpOK, otherTenant.Status)

	ok, err := c.VerifyEmailPasswordCredentials(ctx, "public", "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, core.SignInOK, ok.Status)
	assert.Equal(t, u.ID, ok.User.ID)

	bad, err := c.VerifyEmailPasswordCredentials(ctx, "public", "alice@example.com", "wrong")
	require.NoError(t, err)
	assert.Equal(t, core.SignInWrongCredentials, bad.Status)
}

func TestCore_WithBcryptCost(t *testing.T) {
	c := coremem.New(coremem.WithBcryptCost(bcrypt.MinCost + 1))

	u := signUp(t, c, "public", "bob@example.com")
	res, err := c.VerifyEmailPasswordCredentials(ctx, "public", "bob@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, core.SignInOK, res.Status)
	assert.Equal(t, u.ID, res.User.ID)
}

func TestCore_CreatePrimaryUser(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	b := thirdParty(t, c, "alice@example.com", "g-1", true)

	res, err := c.CreatePrimaryUser(ctx, kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	require.Equal(t, core.CreatePrimaryUserOK, res.Status)
	assert.True(t, res.User.IsPrimaryUser)
	assert.False(t, res.WasAlreadyPrimary)

	again, err := c.CreatePrimaryUser(ctx, kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	assert.True(t, again.WasAlreadyPrimary)

	conflict, err := c.CreatePrimaryUser(ctx, kernel.RecipeUserID(b.ID))
	require.NoError(t, err)
	assert.Equal(t, core.CreatePrimaryUserAccountInfoAlreadyAssociated, conflict.Status)
	assert.Equal(t, a.ID, conflict.PrimaryUserID)

	_, err = c.CreatePrimaryUser(ctx, "missing")
	assert.True(t, errx.IsCode(err, core.CodeUnknownUser))
}

func TestCore_LinkAccounts(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	b := thirdParty(t, c, "alice@example.com", "g-1", true)
	other := signUp(t, c, "public", "bob@example.com")

	notPrimary, err := c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LinkAccountsInputUserIsNotPrimary, notPrimary.Status)

	_, err = c.CreatePrimaryUser(ctx, kernel.RecipeUserID(a.ID))
	require.NoError(t, err)

	linked, err := c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), a.ID)
	require.NoError(t, err)
	require.Equal(t, core.LinkAccountsOK, linked.Status)
	assert.Equal(t, a.ID, linked.User.ID)
	assert.Len(t, linked.User.LoginMethods, 2)

	got, err := c.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID, "recipe user id resolves to its primary user")

	alreadyLinked, err := c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), a.ID)
	require.NoError(t, err)
	assert.True(t, alreadyLinked.AccountsAlreadyLinked)

	_, err = c.CreatePrimaryUser(ctx, kernel.RecipeUserID(other.ID))
	require.NoError(t, err)
	elsewhere, err := c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), other.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LinkAccountsRecipeUserIDAlreadyLinkedWithAnother, elsewhere.Status)
	assert.Equal(t, a.ID, elsewhere.PrimaryUserID)
}

func TestCore_LinkRejectsSharedIdentityWithAnotherPrimary(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	alice := signUp(t, c, "public", "alice@example.com")
	bob := signUp(t, c, "public", "bob@example.com")
	tp := thirdParty(t, c, "alice@example.com", "g-1", true)

	_, err := c.CreatePrimaryUser(ctx, kernel.RecipeUserID(alice.ID))
	require.NoError(t, err)
	_, err = c.CreatePrimaryUser(ctx, kernel.RecipeUserID(bob.ID))
	require.NoError(t, err)

	res, err := c.LinkAccounts(ctx, kernel.RecipeUserID(tp.ID), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LinkAccountsAccountInfoAlreadyAssociatedWithAnother, res.Status)
	assert.Equal(t, alice.ID, res.PrimaryUserID)
}

func TestCore_ListUsersByAccountInfo(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	tp := thirdParty(t, c, "other@example.com", "g-1", true)
	signUp(t, c, "t1", "alice@example.com")

	users, err := c.ListUsersByAccountInfo(ctx, "public", user.AccountInfo{
		Email:      ptrx.String("ALICE@example.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
	}, true)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID, users[0].ID, "oldest first")
	assert.Equal(t, tp.ID, users[1].ID)

	intersect, err := c.ListUsersByAccountInfo(ctx, "public", user.AccountInfo{
		Email:      ptrx.String("alice@example.com"),
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
	}, false)
	require.NoError(t, err)
	assert.Empty(t, intersect)
}

func TestCore_UnlinkAccount(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	b := thirdParty(t, c, "alice@example.com", "g-1", true)

	_, err := c.CreatePrimaryUser(ctx, kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	_, err = c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), a.ID)
	require.NoError(t, err)

	res, err := c.UnlinkAccount(ctx, kernel.RecipeUserID(b.ID))
	require.NoError(t, err)
	assert.True(t, res.WasLinked)
	assert.False(t, res.WasRecipeUserDeleted)

	standalone, err := c.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, standalone.IsPrimaryUser)

	_, err = c.LinkAccounts(ctx, kernel.RecipeUserID(b.ID), a.ID)
	require.NoError(t, err)
	res, err = c.UnlinkAccount(ctx, kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	assert.True(t, res.WasRecipeUserDeleted)

	remaining, err := c.GetUser(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, b.ID.String(), remaining.LoginMethods[0].RecipeUserID.String())
}

func TestCore_AssociateUserToTenant(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	signUp(t, c, "t1", "alice@example.com")

	status, err := c.AssociateUserToTenant(ctx, "t1", kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	assert.Equal(t, core.AssociateEmailAlreadyExists, status)

	status, err = c.AssociateUserToTenant(ctx, "t2", kernel.RecipeUserID(a.ID))
	require.NoError(t, err)
	assert.Equal(t, core.AssociateOK, status)

	u, err := c.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, u.LoginMethods[0].InTenant("t2"))

	status, err = c.AssociateUserToTenant(ctx, "t2", "missing")
	require.NoError(t, err)
	assert.Equal(t, core.AssociateUnknownUserID, status)
}

func TestCore_EmailVerification(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	rid := kernel.RecipeUserID(a.ID)

	tok, err := c.CreateEmailVerificationToken(ctx, "public", rid, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, core.VerificationTokenOK, tok.Status)

	wrongTenant, err := c.VerifyEmailUsingToken(ctx, "t1", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, core.VerifyEmailInvalidToken, wrongTenant.Status)

	res, err := c.VerifyEmailUsingToken(ctx, "public", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, core.VerifyEmailOK, res.Status)
	assert.Equal(t, rid, res.RecipeUserID)

	reused, err := c.VerifyEmailUsingToken(ctx, "public", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, core.VerifyEmailInvalidToken, reused.Status)

	u, err := c.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, u.LoginMethods[0].Verified)

	again, err := c.CreateEmailVerificationToken(ctx, "public", rid, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.VerificationTokenEmailAlreadyVerified, again.Status)
}

func TestCore_Reset(t *testing.T) {
	prod := coremem.New()
	err := prod.Reset()
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeConfiguration))

	c := coremem.New(coremem.WithTestMode())
	a := signUp(t, c, "public", "alice@example.com")
	require.NoError(t, c.Reset())

	u, err := c.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCore_SignInUpPasswordlessUser(t *testing.T) {
	c := coremem.New(coremem.WithTestMode())

	first, err := c.SignInUpPasswordlessUser(ctx, "public", user.AccountInfo{Email: ptrx.String("Carol@X.com")})
	require.NoError(t, err)
	assert.Equal(t, core.PasswordlessOK, first.Status)
	assert.True(t, first.CreatedNewRecipeUser)
	lm := first.User.FirstLoginMethod()
	assert.Equal(t, user.RecipePasswordless, lm.RecipeID)
	assert.Equal(t, "carol@x.com", *lm.Email)
	assert.True(t, lm.Verified)

	again, err := c.SignInUpPasswordlessUser(ctx, "public", user.AccountInfo{Email: ptrx.String("carol@x.com")})
	require.NoError(t, err)
	assert.False(t, again.CreatedNewRecipeUser)
	assert.Equal(t, first.RecipeUserID, again.RecipeUserID)

	otherTenant, err := c.SignInUpPasswordlessUser(ctx, "t1", user.AccountInfo{Email: ptrx.String("carol@x.com")})
	require.NoError(t, err)
	assert.True(t, otherTenant.CreatedNewRecipeUser)

	phone, err := c.SignInUpPasswordlessUser(ctx, "public", user.AccountInfo{PhoneNumber: ptrx.String("+14155550100")})
	require.NoError(t, err)
	assert.True(t, phone.CreatedNewRecipeUser)
	assert.Nil(t, phone.User.FirstLoginMethod().Email)
	assert.True(t, phone.User.FirstLoginMethod().Verified)

	_, err = c.SignInUpPasswordlessUser(ctx, "public", user.AccountInfo{
		Email: ptrx.String("a@x.com"), PhoneNumber: ptrx.String("+14155550100"),
	})
	assert.True(t, errx.IsCode(err, core.CodeInvalidInput))
}
