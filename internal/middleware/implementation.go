package middleware

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/akolanti/MedExtract/internal/adapter/utils"
	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/handlers"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var (
	authMu     sync.RWMutex
	authToken  string
	authBypass bool
)

// InitAuth sets the shared token. An empty token rejects every guarded request unless bypass is on.
func InitAuth(token string, bypass bool) {
	authMu.Lock()
	defer authMu.Unlock()
	authToken = token
	authBypass = bypass
}

func injectTrace(re requestResponseStruct) requestResponseStruct {
	req := re.req
	if req == nil {
		re.badRequest = failureStruct{isBadRequest: true, httpCode: http.StatusBadRequest, errorMessage: "request is empty"}
		return re
	}
	trace := req.Header.Get("X-Trace-Id")
	if trace == "" {
		trace = utils.GetNewUUID()
	}
	re.logger = re.logger.With(config.TRACE_ID_KEY, trace)
	ctx := context.WithValue(req.Context(), config.TRACE_ID_KEY, trace)
	req.Header.Set("X-Trace-Id", trace)
	re.writer.Header().Set("X-Trace-Id", trace)
	re.req = req.WithContext(ctx)

	re.logger.Debug("trace middleware injected")
	return re
}

func authenticate(re requestResponseStruct) requestResponseStruct {
	if !IsValidToken(re.req.Header.Get("Authorization"), re.req.Header.Get("X-API-Key"), re.logger) {
		re.badRequest = failureStruct{isBadRequest: true, httpCode: http.StatusUnauthorized, errorMessage: "Unauthorized"}
		return re
	}
	re.logger.Debug("Authorized")
	return re
}

// IsValidToken accepts "Authorization: Bearer <token>" or "X-API-Key: <token>".
func IsValidToken(authHeader, apiKey string, log *logger_i.Logger) bool {
	authMu.RLock()
	token, bypass := authToken, authBypass
	authMu.RUnlock()

	if bypass {
		log.Warn("auth bypass enabled")
		return true
	}
	if token == "" {
		log.Error("No API token configured")
		return false
	}

	presented := apiKey
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Warn("No Bearer header")
			return false
		}
		presented = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if presented == "" {
		log.Warn("Missing credentials")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		log.Warn("Invalid credentials")
		return false
	}
	return true
}

func rateLimiter(re requestResponseStruct) requestResponseStruct {
	ip, _, err := net.SplitHostPort(re.req.RemoteAddr)
	if err != nil {
		ip = re.req.RemoteAddr
	}

	if !limiterInstance.GetLimiter(ip).Allow() {
		re.logger.Warn("Too many requests", "ip", ip)
		re.badRequest = failureStruct{
			isBadRequest: true,
			httpCode:     http.StatusTooManyRequests,
			errorMessage: "Rate limit exceeded",
		}
		return re
	}
	return re
}

func handleBadRequest(re requestResponseStruct) {
	re.logger.Warn("Bad request", "httpCode", re.badRequest.httpCode, "errorMessage", re.badRequest.errorMessage, "IP", re.req.RemoteAddr)
	handlers.WriteErrorResponse(re.writer, re.badRequest.httpCode, "", re.badRequest.errorMessage)
}
