package observability

import (
	"fmt"
	"net/http"
)

// InstrumentHandler runs h inside a span named operation and, whichever way
// h returns, counts the request and records its duration under endpoint with
// the status code h wrote. Responses of 500 and above mark the span failed.
func (t *Telemetry) InstrumentHandler(operation, endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := t.StartSpan(r.Context(), operation)
		defer span.End()

		timer := t.StartTimer(endpoint)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			timer.Observe(ctx, rw.statusCode)
			if rw.statusCode >= http.StatusInternalServerError {
				span.RecordError(fmt.Errorf("%s returned status %d", endpoint, rw.statusCode))
			}
		}()

		h(rw, r.WithContext(ctx))
	}
}
