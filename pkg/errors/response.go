package errors

import "net/http"

// ErrorBody is the client-visible part of an error.
type ErrorBody struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the {"error": {...}} envelope shared by HTTP and realtime handshakes.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Response maps err onto a status code and envelope. Errors that are not
// AppErrors and internal errors never expose their cause or context.
func Response(err error) (int, ErrorResponse) {
	appErr := GetAppError(err)
	if appErr == nil {
		return http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Code:    ErrCodeInternal,
			Message: "internal server error",
		}}
	}

	body := ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Field:   appErr.Field,
	}
	if appErr.Code != ErrCodeInternal && len(appErr.Context) > 0 {
		body.Details = appErr.Context
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, ErrorResponse{Error: body}
}
