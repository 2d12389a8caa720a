package errx

import "net/http"

// HTTPErrorResponse is the JSON body written for a failed request.
type HTTPErrorResponse struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"error"`
	Type       string                 `json:"type"`
	StatusCode int                    `json:"status"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      string                 `json:"underlying_error,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// ToHTTPResponse renders e for requestID. The wrapped cause is included only
// when withCause is set.
func (e *Error) ToHTTPResponse(requestID string, withCause bool) HTTPErrorResponse {
	resp := HTTPErrorResponse{
		Code:       e.Code,
		Message:    e.Message,
		Type:       string(e.Type),
		StatusCode: e.HTTPStatus,
		RequestID:  requestID,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	if withCause && e.Err != nil {
		resp.Cause = e.Err.Error()
	}
	return resp
}

// HTTPStatusOf returns the suggested status for err. Errors that are not
// *Error map to 500.
func HTTPStatusOf(err error) int {
	var e *Error
	if As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
