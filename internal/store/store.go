package store

import (
	"context"

	"github.com/nhle/deepseek-json/internal/model"
)

// ExchangeFilter controls filtering and pagination for journal queries.
type ExchangeFilter struct {
	SessionID string
	Outcome   *string // "ok", an error kind name, or nil (all)
	Label     *string
	Limit     int
	Offset    int
}

// Journal records chat-completion exchanges for the current session.
type Journal interface {
	RecordExchange(ctx context.Context, ex *model.Exchange) error
	GetExchanges(ctx context.Context, filter ExchangeFilter) ([]model.Exchange, error)
	GetSummary(ctx context.Context, sessionID string) (model.JournalSummary, error)
	Close() error
}
