// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Handlers in the lab services reply with JSON bodies shaped like
// {"ok":true,...} on success and {"ok":false,"error":"..."} on failure.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, payload)
//	httputil.WriteBadRequest(w, "Invalid request body")
//	httputil.WriteServiceUnavailable(w, "User service unavailable")
//
// # Request Parsing
//
//	var req sendRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteBadRequest(w, "Invalid request body")
//		return
//	}
//	id, err := httputil.ParsePathString(r, "id")
//
// # Middleware
//
//	router.Use(mux.MiddlewareFunc(httputil.Standard(tel, 1<<20)))
//
// Standard chains request IDs, trace context extraction, access logging
// through the telemetry façade, panic recovery and a body size limit.
//
// # Related Packages
//
//   - pkg/observability: the telemetry façade used by the middleware
//   - pkg/contextkeys: request-scoped context keys
package httputil
