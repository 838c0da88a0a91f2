package middleware

import (
	"net/http"
	"strconv"

	"github.com/akolanti/MedExtract/internal/handlers"
	"github.com/akolanti/MedExtract/internal/metrics"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

type step func(re requestResponseStruct) requestResponseStruct

var GetHandler = wrap(handlers.GetHandler, injectTrace)

var ExtractHandler = wrap(handlers.ExtractHandler, injectTrace, authenticate, rateLimiter)
var GetStatusHandler = wrap(handlers.GetStatusHandler, injectTrace, authenticate)
var DownloadHandler = wrap(handlers.DownloadHandler, injectTrace, authenticate)

func wrap(next http.HandlerFunc, steps ...step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		defer func() {
			metrics.HttpRequestsTotal.WithLabelValues(routeLabel(r), strconv.Itoa(rec.Status)).Inc()
		}()

		re := processRequest(requestResponseStruct{req: r, writer: rec}, steps)
		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return
		}
		next(rec, re.req)
	}
}

func processRequest(re requestResponseStruct, steps []step) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Debug("New request received", "method", re.req.Method, "path", re.req.URL.Path)
	for _, s := range steps {
		re = s(re)
		if re.badRequest.isBadRequest {
			return re
		}
	}
	return re
}

// routeLabel keeps batch ids out of the metric labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
