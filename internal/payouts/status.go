package payouts

// Status is the terminal question: has the organizer been paid
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusPaid
}

func (s Status) String() string {
	return string(s)
}

// SettlementStage tracks the admin/organizer handshake. PAID is only
// reachable from INITIATED, so "paid without an initiated transfer" is
// unrepresentable.
type SettlementStage string

const (
	StageNone      SettlementStage = "NONE"
	StageInitiated SettlementStage = "INITIATED"
	StagePaid      SettlementStage = "PAID"
)

func (s SettlementStage) IsValid() bool {
	switch s {
	case StageNone, StageInitiated, StagePaid:
		return true
	}
	return false
}

func (s SettlementStage) String() string {
	return string(s)
}
