package events

type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
)

func (s EventStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s EventStatus) String() string {
	return string(s)
}

// IsBookable checks whether orders may be opened against the event
func (s EventStatus) IsBookable() bool {
	return s == StatusPublished
}
