package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/ptrx"
)

func lm(id, email string, verified bool) user.LoginMethod {
	return user.LoginMethod{
		RecipeID:     user.RecipeEmailPassword,
		RecipeUserID: kernel.RecipeUserID(id),
		TenantIDs:    []kernel.TenantID{kernel.DefaultTenantID},
		Email:        ptrx.NonEmptyString(email),
		Verified:     verified,
		TimeJoined:   1,
	}
}

func TestLoginMethod_EmailComparison(t *testing.T) {
	m := lm("r1", "Alice@Example.com ", false)

	assert.True(t, m.HasSameEmailAs(ptrx.String("alice@example.com")))
	assert.False(t, m.HasSameEmailAs(ptrx.String("bob@example.com")))
	assert.False(t, m.HasSameEmailAs(nil))

	noEmail := lm("r2", "", false)
	assert.False(t, noEmail.HasSameEmailAs(ptrx.String("alice@example.com")))
}

func TestLoginMethod_PhoneComparison(t *testing.T) {
	m := user.LoginMethod{PhoneNumber: ptrx.String("+1 (555) 010-0000")}

	assert.True(t, m.HasSamePhoneNumberAs(ptrx.String("+15550100000")))
	assert.False(t, m.HasSamePhoneNumberAs(ptrx.String("+15550100001")))
	assert.False(t, m.HasSamePhoneNumberAs(nil))
}

func TestLoginMethod_ThirdPartyAndWebAuthn(t *testing.T) {
	m := user.LoginMethod{
		ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"},
		WebAuthn:   &user.WebAuthn{CredentialIDs: []string{"c1", "c2"}},
	}

	assert.True(t, m.HasSameThirdPartyInfoAs(&user.ThirdParty{ID: "google", UserID: "g-1"}))
	assert.False(t, m.HasSameThirdPartyInfoAs(&user.ThirdParty{ID: "github", UserID: "g-1"}))
	assert.True(t, m.HasSameWebAuthnInfoAs(&user.WebAuthn{CredentialIDs: []string{"c2"}}))
	assert.False(t, m.HasSameWebAuthnInfoAs(&user.WebAuthn{CredentialIDs: []string{"c3"}}))
	assert.True(t, m.Matches(user.AccountInfo{ThirdParty: &user.ThirdParty{ID: "google", UserID: "g-1"}}))
}

func TestUser_Validate(t *testing.T) {
	t.Run("empty login methods", func(t *testing.T) {
		u := &user.User{ID: "u1"}
		err := u.Validate()
		require.Error(t, err)
		assert.True(t, errx.IsCode(err, user.CodeInvalidUser))
	})

	t.Run("non primary with two login methods", func(t *testing.T) {
		u := &user.User{ID: "u1", LoginMethods: []user.LoginMethod{lm("r1", "a@x.io", false), lm("r2", "a@x.io", false)}}
		assert.Error(t, u.Validate())
	})

	t.Run("primary with two login methods", func(t *testing.T) {
		u := &user.User{ID: "u1", IsPrimaryUser: true, LoginMethods: []user.LoginMethod{lm("r1", "a@x.io", false), lm("r2", "a@x.io", false)}}
		assert.NoError(t, u.Validate())
	})
}

func TestUser_Accessors(t *testing.T) {
	u := &user.User{
		ID:            "r1",
		IsPrimaryUser: true,
		LoginMethods: []user.LoginMethod{
			lm("r1", "a@x.io", false),
			lm("r2", "a@x.io", true),
			lm("r3", "b@x.io", false),
		},
	}

	assert.Equal(t, []string{"a@x.io", "b@x.io"}, u.Emails())
	assert.True(t, u.HasLoginMethod("r2"))
	assert.False(t, u.HasLoginMethod("r9"))
	assert.True(t, u.HasVerifiedContact(user.AccountInfo{Email: ptrx.String("A@x.io")}))
	assert.False(t, u.HasVerifiedContact(user.AccountInfo{Email: ptrx.String("b@x.io")}))
	assert.True(t, u.SharesIdentityWith(user.AccountInfo{Email: ptrx.String("b@x.io")}))

	got, ok := u.LoginMethodFor("r3")
	require.True(t, ok)
	assert.Equal(t, "b@x.io", *got.Email)
}

func TestUser_PhoneAndThirdPartyAccessors(t *testing.T) {
	gh := user.ThirdParty{ID: "github", UserID: "gh-1"}
	u := &user.User{
		ID: "r1",
		LoginMethods: []user.LoginMethod{
			{RecipeID: user.RecipePasswordless, RecipeUserID: "r1", PhoneNumber: ptrx.String("+14155550100")},
			{RecipeID: user.RecipePasswordless, RecipeUserID: "r2", PhoneNumber: ptrx.String("+14155550100")},
			{RecipeID: user.RecipeThirdParty, RecipeUserID: "r3", ThirdParty: &gh},
		},
	}

	assert.Equal(t, []string{"+14155550100"}, u.PhoneNumbers())
	assert.Equal(t, []user.ThirdParty{gh}, u.ThirdParties())
	assert.Empty(t, u.Emails())
}

func TestUser_CloneIsDeep(t *testing.T) {
	u := &user.User{ID: "r1", TenantIDs: []kernel.TenantID{"public"}, LoginMethods: []user.LoginMethod{lm("r1", "a@x.io", false)}}
	c := u.Clone()

	*c.LoginMethods[0].Email = "changed@x.io"
	c.TenantIDs[0] = "other"

	assert.Equal(t, "a@x.io", *u.LoginMethods[0].Email)
	assert.Equal(t, kernel.TenantID("public"), u.TenantIDs[0])
}
