package errors

// Response is the standard error envelope returned by the HTTP API
type Response struct {
	// Error contains the error code in domain.code format
	Error string `json:"error"`

	// Message contains a human-readable error message
	Message string `json:"message"`

	// Details contains optional additional error details
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts an Error to an HTTP response structure
func (e *Error) ToResponse() Response {
	return Response{
		Error:   string(e.Domain) + "." + string(e.Code),
		Message: e.Message,
	}
}

// ToResponseWithDetails converts an Error to an HTTP response with details
func (e *Error) ToResponseWithDetails(details map[string]interface{}) Response {
	r := e.ToResponse()
	r.Details = details
	return r
}

// NewResponse creates a response from any error. Errors that are not *Error
// are reported as a generic internal error so details never leak.
func NewResponse(err error) Response {
	var e *Error
	if As(err, &e) {
		return e.ToResponse()
	}
	return ErrInternal.ToResponse()
}
