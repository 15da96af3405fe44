package router

import (
	"net/http"

	"github.com/getsentry/repro/internal/async"
	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/repro/internal/capture/handler"
	"github.com/getsentry/repro/internal/logging"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// CreateRouter serves the async capture view on / and the synchronous admin
// views under /admin/. Admin views run on executor.
func CreateRouter(store auth.Store, executor *async.Executor, logger *logrus.Logger) http.Handler {
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r := mux.NewRouter()
	r.Use(logging.RequestLogger(logger))
	r.Use(sentryHandler.Handle)
	r.Use(auth.SessionMiddleware(store))

	r.Handle("/", async.Middleware(handler.AsyncCaptureHandler(logger))).Methods("GET")

	r.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently)).Methods("GET")
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Handle("/", executor.Handler(handler.AdminIndexHandler(store, logger))).Methods("GET")
	admin.Handle("/login/", executor.Handler(handler.AdminLoginFormHandler(logger))).Methods("GET")
	admin.Handle("/login/", executor.Handler(handler.AdminLoginHandler(store, logger))).Methods("POST")
	admin.Handle("/logout/", executor.Handler(handler.AdminLogoutHandler(store, logger))).Methods("POST")

	return r
}
