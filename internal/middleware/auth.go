package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/telegram-mini-apps/init-data-golang"
	"pdf-podcaster/internal/models"
)

// Auth validates Telegram Mini App initData and admits allowlisted
// operators.
type Auth struct {
	botToken  string
	operators map[int64]bool
	log       logrus.FieldLogger
}

// NewAuth creates the middleware. An empty allowlist admits every user
// with valid initData.
func NewAuth(botToken string, operators map[int64]bool, log logrus.FieldLogger) *Auth {
	return &Auth{botToken: botToken, operators: operators, log: log}
}

// initData reads "Authorization: tma <initData>". Browsers cannot set
// headers on websocket upgrades, so the tma query parameter is accepted
// as well.
func initData(r *http.Request) (string, int, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get("tma"); q != "" {
			return q, 0, ""
		}
		return "", http.StatusUnauthorized, "Authorization header is required"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "tma" {
		return "", http.StatusUnauthorized, "Authorization header format must be 'tma <initData>'"
	}
	return parts[1], 0, ""
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, code, msg := initData(r)
		if code != 0 {
			http.Error(w, msg, code)
			return
		}

		if a.botToken == "" {
			a.log.Error("TELEGRAM_BOT_TOKEN is not set")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if err := initdata.Validate(raw, a.botToken, 0); err != nil {
			a.log.WithError(err).Warn("Invalid init data")
			http.Error(w, "Invalid init data", http.StatusUnauthorized)
			return
		}

		data, err := initdata.Parse(raw)
		if err != nil {
			a.log.WithError(err).Warn("Error parsing init data")
			http.Error(w, "Error parsing init data", http.StatusBadRequest)
			return
		}

		if len(a.operators) > 0 && !a.operators[data.User.ID] {
			a.log.WithField("telegram_id", data.User.ID).Warn("Rejected user outside the operator allowlist")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		op := &models.Operator{TelegramID: data.User.ID, Username: data.User.Username}
		ctx := context.WithValue(r.Context(), models.OperatorContextKey, op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFrom returns the authenticated operator of a request context.
func OperatorFrom(ctx context.Context) (*models.Operator, bool) {
	op, ok := ctx.Value(models.OperatorContextKey).(*models.Operator)
	return op, ok
}
