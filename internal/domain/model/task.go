package model

import "github.com/shopspring/decimal"

type TaskTier string

const (
	TierMicro TaskTier = "micro"
	TierMacro TaskTier = "macro"
)

type TaskKind string

const (
	KindWeb   TaskKind = "web"
	KindVideo TaskKind = "video"
)

type Task struct {
	ID               int
	Title            string
	Reward           decimal.Decimal
	Tier             TaskTier
	Kind             TaskKind
	CooldownSeconds  int
	RemainingSeconds int
	ActiveSessionID  string
}

func (t Task) InFlight() bool { return t.ActiveSessionID != "" }

// Ready reports whether the task may be started: cooled down and without a
// session the server still tracks as open.
func (t Task) Ready() bool { return t.RemainingSeconds == 0 && !t.InFlight() }

type Profile struct {
	Username   string
	Balance    decimal.Decimal
	AdsWatched int
	DailyAds   int
	DailyLimit int
	Referrals  int
}

func (p Profile) DailyLimitReached() bool {
	return p.DailyLimit > 0 && p.DailyAds >= p.DailyLimit
}

type Withdrawal struct {
	Method  string
	Account string
	Amount  decimal.Decimal
}

type WithdrawResult struct {
	OK      bool
	Message string
	Balance decimal.Decimal
}
