package coreinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/authlink/pkg/asyncx"
	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/errx"
	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

var _ core.Client = (*HTTPClient)(nil)

// HTTPClient talks JSON to a remote core. Reads are retried on transport
// failures, mutations never are.
type HTTPClient struct {
	agent       *fiber.Client
	baseURL     string
	apiKey      string
	cdiVersion  string
	timeout     time.Duration
	readRetries int
	retryDelay  time.Duration
}

func NewHTTPClient(cfg config.CoreConfig) *HTTPClient {
	return &HTTPClient{
		agent:       &fiber.Client{},
		baseURL:     strings.TrimRight(cfg.ConnectionURI, "/"),
		apiKey:      cfg.APIKey,
		cdiVersion:  cfg.CDIVersion,
		timeout:     cfg.Timeout,
		readRetries: cfg.ReadRetries,
		retryDelay:  cfg.RetryDelay,
	}
}

// ============================================================================
// UserReader
// ============================================================================

type getUserResponse struct {
	Status string     `json:"status"`
	User   *user.User `json:"user"`
}

func (c *HTTPClient) GetUser(ctx context.Context, userID kernel.UserID) (*user.User, error) {
	var resp getUserResponse
	if err := c.get(ctx, "/user/id", url.Values{"userId": {userID.String()}}, &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK":
		return resp.User, nil
	case "UNKNOWN_USER_ID_ERROR":
		return nil, nil
	default:
		return nil, core.ErrUnknownStatus(resp.Status)
	}
}

type listUsersResponse struct {
	Status string      `json:"status"`
	Users  []user.User `json:"users"`
}

func (c *HTTPClient) ListUsersByAccountInfo(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo, doUnion bool) ([]user.User, error) {
	q := url.Values{"doUnionOfAccountInfo": {fmt.Sprint(doUnion)}}
	if info.Email != nil {
		q.Set("email", user.NormalizeEmail(*info.Email))
	}
	if info.PhoneNumber != nil {
		q.Set("phoneNumber", *info.PhoneNumber)
	}
	if info.ThirdParty != nil {
		q.Set("thirdPartyId", info.ThirdParty.ID)
		q.Set("thirdPartyUserId", info.ThirdParty.UserID)
	}
	if info.WebAuthn != nil && len(info.WebAuthn.CredentialIDs) > 0 {
		q.Set("webauthnCredentialId", info.WebAuthn.CredentialIDs[0])
	}

	var resp listUsersResponse
	if err := c.get(ctx, tenantPath(tenantID, "/users/by-accountinfo"), q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, core.ErrUnknownStatus(resp.Status)
	}
	return resp.Users, nil
}

// ============================================================================
// LinkingWriter
// ============================================================================

func (c *HTTPClient) CreatePrimaryUser(ctx context.Context, recipeUserID kernel.RecipeUserID) (core.CreatePrimaryUserResult, error) {
	var res core.CreatePrimaryUserResult
	err := c.post(ctx, "/recipe/accountlinking/user/primary", fiber.Map{"recipeUserId": recipeUserID}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.CreatePrimaryUserOK,
		core.CreatePrimaryUserRecipeUserIDAlreadyLinkedWithPrimary,
		core.CreatePrimaryUserAccountInfoAlreadyAssociated:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

func (c *HTTPClient) LinkAccounts(ctx context.Context, recipeUserID kernel.RecipeUserID, primaryUserID kernel.UserID) (core.LinkAccountsResult, error) {
	var res core.LinkAccountsResult
	err := c.post(ctx, "/recipe/accountlinking/user/link", fiber.Map{
		"recipeUserId":  recipeUserID,
		"primaryUserId": primaryUserID,
	}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.LinkAccountsOK,
		core.LinkAccountsRecipeUserIDAlreadyLinkedWithAnother,
		core.LinkAccountsInputUserIsNotPrimary,
		core.LinkAccountsAccountInfoAlreadyAssociatedWithAnother:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

func (c *HTTPClient) UnlinkAccount(ctx context.Context, recipeUserID kernel.RecipeUserID) (core.UnlinkResult, error) {
	var res core.UnlinkResult
	if err := c.post(ctx, "/recipe/accountlinking/user/unlink", fiber.Map{"recipeUserId": recipeUserID}, &res); err != nil {
		return res, err
	}
	if res.Status != core.UnlinkOK {
		return res, core.ErrUnknownStatus(string(res.Status))
	}
	return res, nil
}

// ============================================================================
// TenantAssociator
// ============================================================================

type statusResponse struct {
	Status string `json:"status"`
}

func (c *HTTPClient) AssociateUserToTenant(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (core.AssociateStatus, error) {
	var resp statusResponse
	err := c.post(ctx, tenantPath(tenantID, "/recipe/multitenancy/tenant/user"), fiber.Map{"recipeUserId": recipeUserID}, &resp)
	if err != nil {
		return "", err
	}
	switch s := core.AssociateStatus(resp.Status); s {
	case core.AssociateOK,
		core.AssociateUnknownUserID,
		core.AssociateEmailAlreadyExists,
		core.AssociatePhoneNumberAlreadyExists,
		core.AssociateThirdPartyAlreadyExists,
		core.AssociationNotAllowed:
		return s, nil
	default:
		return "", core.ErrUnknownStatus(resp.Status)
	}
}

// ============================================================================
// EmailPasswordStore
// ============================================================================

func (c *HTTPClient) CreateEmailPasswordUser(ctx context.Context, tenantID kernel.TenantID, email, password string) (core.SignUpResult, error) {
	var res core.SignUpResult
	err := c.post(ctx, tenantPath(tenantID, "/recipe/signup"), fiber.Map{"email": email, "password": password}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.SignUpOK, core.SignUpEmailAlreadyExists:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

func (c *HTTPClient) VerifyEmailPasswordCredentials(ctx context.Context, tenantID kernel.TenantID, email, password string) (core.SignInResult, error) {
	var res core.SignInResult
	err := c.post(ctx, tenantPath(tenantID, "/recipe/signin"), fiber.Map{"email": email, "password": password}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.SignInOK, core.SignInWrongCredentials:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

// ============================================================================
// PasswordlessStore
// ============================================================================

type passwordlessCodeResponse struct {
	Status           string `json:"status"`
	PreAuthSessionID string `json:"preAuthSessionId"`
	DeviceID         string `json:"deviceId"`
	UserInputCode    string `json:"userInputCode"`
}

// SignInUpPasswordlessUser creates a code on the core and consumes it right
// away. Code delivery and checking happen before this call.
func (c *HTTPClient) SignInUpPasswordlessUser(ctx context.Context, tenantID kernel.TenantID, info user.AccountInfo) (core.PasswordlessResult, error) {
	body := fiber.Map{}
	switch {
	case info.Email != nil && info.PhoneNumber == nil:
		body["email"] = user.NormalizeEmail(*info.Email)
	case info.PhoneNumber != nil && info.Email == nil:
		body["phoneNumber"] = *info.PhoneNumber
	default:
		return core.PasswordlessResult{}, core.ErrInvalidInput().WithDetail("reason", "exactly one of email or phone number is required")
	}

	var code passwordlessCodeResponse
	if err := c.post(ctx, tenantPath(tenantID, "/recipe/signinup/code"), body, &code); err != nil {
		return core.PasswordlessResult{}, err
	}
	if code.Status != "OK" {
		return core.PasswordlessResult{}, core.ErrUnknownStatus(code.Status)
	}

	var res core.PasswordlessResult
	err := c.post(ctx, tenantPath(tenantID, "/recipe/signinup/code/consume"), fiber.Map{
		"preAuthSessionId": code.PreAuthSessionID,
		"deviceId":         code.DeviceID,
		"userInputCode":    code.UserInputCode,
	}, &res)
	if err != nil {
		return res, err
	}
	if res.Status != core.PasswordlessOK {
		return res, core.ErrBadResponse(nil).
			WithDetail("reason", "freshly created code rejected").
			WithDetail("status", res.Status)
	}
	return res, nil
}

// ============================================================================
// EmailVerificationStore
// ============================================================================

func (c *HTTPClient) CreateEmailVerificationToken(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) (core.VerificationTokenResult, error) {
	var res core.VerificationTokenResult
	err := c.post(ctx, tenantPath(tenantID, "/recipe/user/email/verify/token"), fiber.Map{"userId": recipeUserID, "email": email}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.VerificationTokenOK, core.VerificationTokenEmailAlreadyVerified:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

func (c *HTTPClient) VerifyEmailUsingToken(ctx context.Context, tenantID kernel.TenantID, token string) (core.VerifyEmailResult, error) {
	var res core.VerifyEmailResult
	err := c.post(ctx, tenantPath(tenantID, "/recipe/user/email/verify"), fiber.Map{"method": "token", "token": token}, &res)
	if err != nil {
		return res, err
	}
	switch res.Status {
	case core.VerifyEmailOK, core.VerifyEmailInvalidToken:
		return res, nil
	default:
		return res, core.ErrUnknownStatus(string(res.Status))
	}
}

type isVerifiedResponse struct {
	Status     string `json:"status"`
	IsVerified bool   `json:"isVerified"`
}

func (c *HTTPClient) IsEmailVerified(ctx context.Context, recipeUserID kernel.RecipeUserID, email string) (bool, error) {
	var resp isVerifiedResponse
	q := url.Values{"userId": {recipeUserID.String()}, "email": {email}}
	if err := c.get(ctx, "/recipe/user/email/verify", q, &resp); err != nil {
		return false, err
	}
	if resp.Status != "OK" {
		return false, core.ErrUnknownStatus(resp.Status)
	}
	return resp.IsVerified, nil
}

// MarkEmailAsVerified issues a token in tenantID and consumes it right away.
func (c *HTTPClient) MarkEmailAsVerified(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID, email string) error {
	tok, err := c.CreateEmailVerificationToken(ctx, tenantID, recipeUserID, email)
	if err != nil {
		return err
	}
	if tok.Status == core.VerificationTokenEmailAlreadyVerified {
		return nil
	}
	res, err := c.VerifyEmailUsingToken(ctx, tenantID, tok.Token)
	if err != nil {
		return err
	}
	if res.Status != core.VerifyEmailOK {
		return core.ErrBadResponse(nil).WithDetail("reason", "freshly issued token rejected")
	}
	return nil
}

// ============================================================================
// Transport
// ============================================================================

func tenantPath(tenantID kernel.TenantID, path string) string {
	return "/" + url.PathEscape(tenantID.OrDefault().String()) + path
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values, out any) error {
	_, err := asyncx.RetryWithBackoffIf(ctx, c.readRetries, c.retryDelay, isTransient,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.do(ctx, fiber.MethodGet, path, q, nil, out)
		})
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, fiber.MethodPost, path, nil, body, out)
}

func isTransient(err error) bool {
	return errx.IsCode(err, core.CodeUnreachable)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uri := c.baseURL + path
	if len(q) > 0 {
		uri += "?" + q.Encode()
	}

	var a *fiber.Agent
	switch method {
	case fiber.MethodGet:
		a = c.agent.Get(uri)
	default:
		a = c.agent.Post(uri).JSON(body)
	}
	a.Set("cdi-version", c.cdiVersion).
		Set("rid", "authlink").
		Timeout(c.requestTimeout(ctx))
	if c.apiKey != "" {
		a.Set("api-key", c.apiKey)
	}

	start := time.Now()
	code, respBody, errs := a.Bytes()
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"method":  method,
		"path":    path,
		"status":  code,
		"latency": time.Since(start).String(),
	})

	if len(errs) > 0 {
		log.WithError(errs[0]).Warn("core request failed")
		return core.ErrUnreachable(errs[0]).WithDetail("path", path)
	}
	if code != fiber.StatusOK {
		log.Warn("core returned non-200")
		return core.ErrBadResponse(nil).
			WithDetail("path", path).
			WithDetail("http_status", code).
			WithDetail("body", truncate(string(respBody), 256))
	}
	log.Debug("core request")

	if err := json.Unmarshal(respBody, out); err != nil {
		return core.ErrBadResponse(err).WithDetail("path", path)
	}
	return nil
}

func (c *HTTPClient) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	return timeout
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
