package services

import "net/http"

// Pagination describes one page of a list result.
type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
}

func NewPagination(page, perPage int, total int64) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}

type ErrorBody struct {
	Message string `json:"message"`
	Payload any    `json:"payload"`
}

// Result is the envelope every auth operation answers with. Status is the
// HTTP status the transport should use and is not part of the body.
type Result struct {
	Status     int         `json:"-"`
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   any         `json:"metadata,omitempty"`
	Error      *ErrorBody  `json:"error,omitempty"`
}

// Success wraps data. A nil data becomes an empty object; string data is
// also used as the message.
func Success(data any) *Result {
	r := &Result{Status: http.StatusOK, Success: true, Data: data}
	if data == nil {
		r.Data = map[string]any{}
	}
	if msg, ok := data.(string); ok {
		r.Message = msg
	}
	return r
}

func (r *Result) WithMessage(msg string) *Result {
	r.Message = msg
	return r
}

func (r *Result) WithPagination(p *Pagination) *Result {
	r.Pagination = p
	return r
}

// Failure builds an error envelope. An empty msg is replaced by the default
// message for status.
func Failure(status int, msg string, payload any) *Result {
	if msg == "" {
		msg = defaultMessage(status)
	}
	return &Result{
		Status:  status,
		Success: false,
		Error:   &ErrorBody{Message: msg, Payload: payload},
	}
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The browser (or proxy) sent a request that this server could not understand."
	case http.StatusUnauthorized:
		return "The server could not verify that you are authorized to access the URL requested."
	case http.StatusForbidden:
		return "You don't have the permission to access the requested resource."
	case http.StatusNotFound:
		return "The requested URL was not found on the server."
	case http.StatusTooManyRequests:
		return "Too many requests. Please try again later."
	case http.StatusInternalServerError:
		return "The server encountered an internal error and was unable to complete your request."
	default:
		return "Error"
	}
}
