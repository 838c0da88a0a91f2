package utils

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func GetNewUUID() string {
	return uuid.New().String()
}

type RouterClient struct {
	Router *chi.Mux
}

func GetChiURLParam(request *http.Request, key string) string {
	return chi.URLParam(request, key)
}

// NewRouter returns a chi router with panic recovery and the prometheus endpoint.
// Behind a proxy the client address comes from X-Forwarded-For / X-Real-IP, which
// is what the upload rate limiter keys on.
func NewRouter(trustProxy bool) RouterClient {
	router := chi.NewRouter()
	if trustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(chimw.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	return RouterClient{Router: router}
}
