// Package iam (Identity and Access Management) links the login methods of a
// person into one account and orchestrates sign in, sign up and session
// issuance around that linking.
//
// # Overview
//
// The iam package is organized into several sub-packages that work together:
//
//   - iam/user                User and LoginMethod model, identity comparison
//   - iam/core                port to the user store (remote core over HTTP, or in memory)
//   - iam/session             sessions, access tokens and session claims
//   - iam/mfa                 first factor validation and secondary factor bookkeeping
//   - iam/accountlinking      the linking engine and the sign in/up policy
//   - iam/auth                orchestration shared by every recipe, middleware, link history
//   - iam/emailpassword       email and password sign in/up
//   - iam/emailverification   verification tokens, the st-ev claim, linking after verification
//   - iam/otp                 one-time sign in codes, their storage and delivery
//   - iam/passwordless        sign in/up with a code sent to an email or phone number
//   - iam/iamcontainer        composition of the whole graph
//
// # Architecture
//
// The package follows the same layering in every sub-domain:
//
//	HTTP Handler  →  Service (…srv)  →  Port interface  →  Infrastructure (…infra, …mem)
//
// Each sub-domain exposes its own error registry (e.g. "LINKING", "AUTH",
// "SESSION", "CORE") and typed status values for outcomes callers must branch
// on. Nothing is global: the container builds one Engine and one Orchestrator
// and hands them to the recipes.
//
// # Users and login methods
//
// A recipe user is created by one sign in method (emailpassword, passwordless,
// thirdparty, webauthn). A primary user groups one or more recipe users, and
// its id is the recipe user id of the login method it was created from. Within
// a tenant, no two primary users may share an email, a phone number, a third
// party identity or a webauthn credential.
//
// # Account linking
//
// After a recipe user is created, signed in or verified, the engine asks the
// ShouldLinkFunc policy whether it may be linked automatically:
//
//  1. If another primary user holds the same identity, the new login method
//     is linked to it.
//  2. Otherwise the user itself may become primary, provided the policy allows
//     it and, when the policy requires verification, its email is verified.
//  3. Races with the core (a concurrent link or promotion) restart the
//     decision, up to ACCOUNT_LINKING_MAX_RETRIES attempts.
//
// Sign up and sign in are refused when they would leave an unverified
// look-alike account that could later be linked into a legitimate owner's
// account. Refusals carry an ERR_CODE_0xx reason for support.
//
// # Sessions and factors
//
// A request with a session and shouldTryLinkingWithSessionUser unset or true
// is treated as a secondary factor: the new login method is linked to the
// session user and the session is kept. Without a session, or with linking
// disabled, it is a first factor and a new session is issued.
//
// # ──────────────────────────────────────────────────────
// # ENDPOINT REFERENCE
// # ──────────────────────────────────────────────────────
//
// All routes are mounted under /auth. Auth APIs answer 200 with a status body
// for expected outcomes and use HTTP errors only for malformed requests,
// missing sessions and server faults.
//
// ## Email password  (registered by emailpasswordsrv.Handler)
//
// ### POST /auth/signup, POST /auth/signin
//
// Request body:
//
//	{
//	  "formFields": [
//	    {"id": "email",    "value": "alice@example.com"},
//	    {"id": "password", "value": "correct-horse-1"}
//	  ],
//	  "tenantId": "public",                   // optional
//	  "shouldTryLinkingWithSessionUser": true // optional
//	}
//
// Response 200 (sets the st-access-token header and sAccessToken cookie):
//
//	{ "status": "OK", "user": { "id": "...", "isPrimaryUser": true, "loginMethods": [...] } }
//
// Other 200 bodies:
//
//	{ "status": "FIELD_ERROR", "formFields": [{"id": "password", "error": "..."}] }
//	{ "status": "EMAIL_ALREADY_EXISTS_ERROR" }
//	{ "status": "WRONG_CREDENTIALS_ERROR" }
//	{ "status": "SIGN_UP_NOT_ALLOWED", "reason": "... (ERR_CODE_007)" }
//
// Error responses: 400 (malformed body), 401 (linking required but no session)
//
// ## Passwordless  (registered by passwordlesssrv.Handler)
//
// ### POST /auth/signinup/code
//
// Request body: { "email": "alice@example.com" } or { "phoneNumber": "+14155550100" }
// Response 200: { "status": "OK", "deviceId": "...", "flowType": "USER_INPUT_CODE", "codeLifetime": 900000, "maximumCodeInputAttempts": 5 }
// Other 200 bodies: { "status": "SIGN_IN_UP_NOT_ALLOWED", "reason": "... (ERR_CODE_002)" }
// Error responses: 400 (no contact or both), 429 (code requested again too soon)
//
// ### POST /auth/signinup/code/consume
//
// Request body: { "deviceId": "...", "userInputCode": "123456" }
// Response 200: { "status": "OK", "createdNewRecipeUser": true, "user": {...} }
// Other 200 bodies:
//
//	{ "status": "INCORRECT_USER_INPUT_CODE_ERROR", "failedCodeInputAttemptCount": 1, "maximumCodeInputAttempts": 5 }
//	{ "status": "EXPIRED_USER_INPUT_CODE_ERROR" }
//	{ "status": "RESTART_FLOW_ERROR" }
//
// ## Email verification  (registered by emailverificationsrv.Handler)
//
// ### POST /auth/user/email/verify/token
//
// Sends a verification link for the session's login method.
// Response 200: { "status": "OK" } or { "status": "EMAIL_ALREADY_VERIFIED_ERROR" }
//
// ### POST /auth/user/email/verify
//
// Request body: { "method": "token", "token": "...", "tenantId": "public" }
// Response 200: { "status": "OK", "user": {...} } or { "status": "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR" }
//
// ### GET /auth/user/email/verify
//
// Response 200: { "status": "OK", "isVerified": true }
//
// ## Accounts  (registered by authsrv.Handler)
//
// ### GET /auth/users/:id/link-events?page=1&page_size=20
//
// Linking history of the session user. Other users answer 403.
//
// ### POST /auth/accounts/unlink
//
// Request body: { "recipeUserId": "..." }
// Response 200: { "status": "OK", "wasRecipeUserDeleted": false, "wasLinked": true }
//
// With EMAIL_VERIFICATION_MODE=REQUIRED the account routes also require a
// verified email (403 SESSION_INVALID_CLAIMS otherwise).
package iam
