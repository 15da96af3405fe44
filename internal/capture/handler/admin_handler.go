package handler

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/repro/internal/auth"
	"github.com/sirupsen/logrus"
)

const (
	adminIndexPath = "/admin/"
	adminLoginPath = "/admin/login/"

	invalidLoginMessage = "Please enter the correct username and password for a staff account."
)

type indexPage struct {
	User  *auth.User
	Users []auth.User
}

type loginPage struct {
	Next     string
	Username string
	Error    string
}

// AdminIndexHandler lists users for staff members and redirects everybody else to the login page.
func AdminIndexHandler(store auth.Store, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := currentUser(r)
		if err != nil {
			logger.Errorf("Unable to resolve request user %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if !user.IsAuthenticated() || !user.IsStaff {
			http.Redirect(w, r, adminLoginPath+"?next="+url.QueryEscape(adminIndexPath), http.StatusFound)
			return
		}

		users, err := store.ListUsers(ctx)
		if err != nil {
			logger.Errorf("Unable to list users %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		render(w, indexTemplate, indexPage{User: user, Users: users}, http.StatusOK, logger)
	}
}

func AdminLoginFormHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, loginTemplate, loginPage{Next: safeNext(r.URL.Query().Get("next"))}, http.StatusOK, logger)
	}
}

// AdminLoginHandler authenticates a staff account and starts a session.
func AdminLoginHandler(store auth.Store, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			logger.Errorf("Error encountered when parsing login form %v", err)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		page := loginPage{
			Next:     safeNext(r.PostForm.Get("next")),
			Username: r.PostForm.Get("username"),
		}

		user, err := store.Authenticate(r.Context(), page.Username, r.PostForm.Get("password"))
		if errors.Is(err, auth.ErrInvalidCredentials) || (err == nil && !user.IsStaff) {
			logger.Infof("Rejected admin login for username: %s", page.Username)
			page.Error = invalidLoginMessage
			render(w, loginTemplate, page, http.StatusOK, logger)
			return
		}
		if err != nil {
			logger.Errorf("Error encountered during login %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if err := auth.Login(r.Context(), w, store, user); err != nil {
			logger.Errorf("Error encountered when creating session %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		logger.Infof("Admin login successful with username: %s", user.Username)
		http.Redirect(w, r, page.Next, http.StatusFound)
	}
}

func AdminLogoutHandler(store auth.Store, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Logout(r.Context(), w, store); err != nil {
			logger.Errorf("Error encountered during logout %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		render(w, loggedOutTemplate, nil, http.StatusOK, logger)
	}
}

func currentUser(r *http.Request) (*auth.User, error) {
	lazy, ok := auth.UserFromContext(r.Context())
	if !ok {
		anonymous := auth.AnonymousUser
		return &anonymous, nil
	}
	return lazy.Get(r.Context())
}

// safeNext only allows local absolute paths as redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return adminIndexPath
	}
	return next
}

func render(w http.ResponseWriter, tmpl *template.Template, data interface{}, status int, logger *logrus.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		logger.Errorf("Error encountered when rendering template %s %v", tmpl.Name(), err)
	}
}
