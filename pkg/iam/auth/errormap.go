package auth

import (
	"github.com/Abraxas-365/authlink/pkg/iam/accountlinking"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// StatusResponse is the body of a non OK auth API response.
type StatusResponse struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ReasonMapping maps a status to a fixed message, or per reason when
// ByReason is set.
type ReasonMapping struct {
	Message  string
	ByReason map[accountlinking.SessionLinkFailure]string
}

// ErrorCodeMap is the set of user facing reasons of one API.
type ErrorCodeMap map[Status]ReasonMapping

const linkingFailedMessage = "Cannot sign in / up due to security reasons. Please contact support. "

// SignUpErrorCodeMap is used by password sign up.
var SignUpErrorCodeMap = ErrorCodeMap{
	StatusSignUpNotAllowed: {
		Message: "Cannot sign up due to security reasons. Please try logging in, use a different login method or contact support. (ERR_CODE_007)",
	},
	StatusLinkingToSessionUserFailed: {ByReason: map[accountlinking.SessionLinkFailure]string{
		accountlinking.FailureEmailVerificationRequired:               linkingFailedMessage + "(ERR_CODE_013)",
		accountlinking.FailureRecipeUserIDAlreadyLinkedWithAnother:    linkingFailedMessage + "(ERR_CODE_014)",
		accountlinking.FailureAccountInfoAlreadyAssociated:            linkingFailedMessage + "(ERR_CODE_015)",
		accountlinking.FailureSessionUserAccountInfoAlreadyAssociated: linkingFailedMessage + "(ERR_CODE_016)",
	}},
}

// SignInErrorCodeMap is used by password sign in.
var SignInErrorCodeMap = ErrorCodeMap{
	StatusSignInNotAllowed: {
		Message: "Cannot sign in due to security reasons. Please try resetting your password, use a different login method or contact support. (ERR_CODE_008)",
	},
	StatusLinkingToSessionUserFailed: {ByReason: map[accountlinking.SessionLinkFailure]string{
		accountlinking.FailureEmailVerificationRequired:               linkingFailedMessage + "(ERR_CODE_009)",
		accountlinking.FailureRecipeUserIDAlreadyLinkedWithAnother:    linkingFailedMessage + "(ERR_CODE_010)",
		accountlinking.FailureAccountInfoAlreadyAssociated:            linkingFailedMessage + "(ERR_CODE_011)",
		accountlinking.FailureSessionUserAccountInfoAlreadyAssociated: linkingFailedMessage + "(ERR_CODE_012)",
	}},
}

// PasswordlessErrorCodeMap is used by both passwordless APIs. They report
// every refusal as SIGN_IN_UP_NOT_ALLOWED.
var PasswordlessErrorCodeMap = ErrorCodeMap{
	StatusSignUpNotAllowed: {
		Message: "Cannot sign in / up due to security reasons. Please try a different login method or contact support. (ERR_CODE_002)",
	},
	StatusSignInNotAllowed: {
		Message: "Cannot sign in / up due to security reasons. Please try a different login method or contact support. (ERR_CODE_003)",
	},
	StatusLinkingToSessionUserFailed: {ByReason: map[accountlinking.SessionLinkFailure]string{
		accountlinking.FailureEmailVerificationRequired:               linkingFailedMessage + "(ERR_CODE_017)",
		accountlinking.FailureRecipeUserIDAlreadyLinkedWithAnother:    linkingFailedMessage + "(ERR_CODE_018)",
		accountlinking.FailureAccountInfoAlreadyAssociated:            linkingFailedMessage + "(ERR_CODE_019)",
		accountlinking.FailureSessionUserAccountInfoAlreadyAssociated: linkingFailedMessage + "(ERR_CODE_020)",
	}},
}

// ErrorStatusResponseWithReason turns an internal status and reason into the
// response status errorStatus with a user facing reason. A pair the map does
// not cover is a programming error.
func ErrorStatusResponseWithReason(status Status, reason accountlinking.SessionLinkFailure, codes ErrorCodeMap, errorStatus Status) (StatusResponse, error) {
	if m, ok := codes[status]; ok {
		if m.ByReason == nil && m.Message != "" {
			return StatusResponse{Status: errorStatus, Reason: m.Message}, nil
		}
		if msg, ok := m.ByReason[reason]; ok && reason != "" {
			return StatusResponse{Status: errorStatus, Reason: msg}, nil
		}
	}
	logx.WithFields(logx.Fields{"status": status, "reason": reason}).Debug("auth: unmapped error status")
	return StatusResponse{}, ErrUnmappedStatus(status, string(reason))
}
