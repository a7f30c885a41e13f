package models

type contextKey string

// OperatorContextKey is the key for the authenticated operator in the request context.
const OperatorContextKey = contextKey("operator")

// Operator is a dashboard user, identified by their Telegram account.
type Operator struct {
	TelegramID int64
	Username   string
}
