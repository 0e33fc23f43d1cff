package models

import "time"

// Position is a live leveraged position. It exists only between a confirmed
// open fill and a confirmed close fill; the exchange's position list is the
// authoritative copy, this struct is the manager's working state.
type Position struct {
	Symbol     string
	Side       string
	EntryPrice float64
	Contracts  float64
	Leverage   int
	EntryScore float64
	OpenedAt   time.Time
}

// Margin returns the capital committed to the position before leverage
func (p Position) Margin() float64 {
	if p.Leverage == 0 {
		return 0
	}
	return p.EntryPrice * p.Contracts / float64(p.Leverage)
}

// LivePosition is the exchange's view of one open position as reported by
// the position-risk endpoint
type LivePosition struct {
	Symbol        string
	Side          string
	EntryPrice    float64
	MarkPrice     float64
	Contracts     float64
	Leverage      int
	UnrealizedPnl float64
}

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// PositionState is a lifecycle state of a per-symbol state machine
type PositionState string

const (
	StateNone    PositionState = "none"
	StateOpening PositionState = "opening"
	StateOpen    PositionState = "open"
	StateClosing PositionState = "closing"
	StateClosed  PositionState = "closed"
)

// Live reports whether the state counts against the open-position caps
func (s PositionState) Live() bool {
	return s == StateOpening || s == StateOpen || s == StateClosing
}
