package model

import "time"

// OutcomeOK marks a successful exchange. Failed exchanges store the error
// kind name instead (server_busy, timeout, ...).
const OutcomeOK = "ok"

// Exchange is one journaled chat-completion call: a single logical send,
// including every retry attempt it took.
type Exchange struct {
	ID        string
	SessionID string
	Label     string
	Model     string
	Prompt    string
	Attempts  int
	Outcome   string
	Latency   time.Duration
	CreatedAt time.Time
}

// JournalSummary aggregates the exchanges of one session.
type JournalSummary struct {
	Exchanges int
	Attempts  int
	Failures  int
	Latency   time.Duration
}
