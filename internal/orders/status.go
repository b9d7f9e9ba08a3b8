package orders

// Status is the lifecycle state of an order. The money question (was a
// refund promised, was it paid out) lives in RefundStage so a cancelled
// order does not need extra statuses per refund step.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// RefundStage tracks the refund side-channel of a cancelled order
type RefundStage string

const (
	RefundNone      RefundStage = "NONE"
	RefundDue       RefundStage = "DUE"
	RefundProcessed RefundStage = "PROCESSED"
)

func (s RefundStage) IsValid() bool {
	switch s {
	case RefundNone, RefundDue, RefundProcessed:
		return true
	}
	return false
}

func (s RefundStage) String() string {
	return string(s)
}

// CheckInStatus is the gate state of a single ticket. The transition is
// one-way: a used ticket never goes back.
type CheckInStatus string

const (
	NotCheckedIn CheckInStatus = "NOT_CHECKED_IN"
	CheckedIn    CheckInStatus = "CHECKED_IN"
)

func (s CheckInStatus) String() string {
	return string(s)
}

// ScanReason explains why a gate scan was refused
type ScanReason string

const (
	ReasonBadSignature ScanReason = "bad-signature"
	ReasonNotPaid      ScanReason = "not-paid"
	ReasonAlreadyUsed  ScanReason = "already-used"
	ReasonCancelled    ScanReason = "cancelled"
)

func (r ScanReason) String() string {
	return string(r)
}
