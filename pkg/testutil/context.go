package testutil

import (
	"net/http"

	id "aidreg/pkg/domain"
	"aidreg/pkg/requestcontext"
)

// WithCaller attaches the caller principal the auth middleware would set.
func WithCaller(req *http.Request, caller string) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), id.Principal(caller)))
}

// WithRequestID attaches a request id as the request middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
