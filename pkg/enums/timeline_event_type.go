package enums

import "fmt"

// TimelineEventType classifies an entry of a client's timeline.
type TimelineEventType string

const (
	TimelineObservacao  TimelineEventType = "Observacao"
	TimelineLigacao     TimelineEventType = "Ligacao"
	TimelineCNE         TimelineEventType = "CNE"
	TimelineVendaGerada TimelineEventType = "VendaGerada"
)

var validTimelineEventTypes = []TimelineEventType{
	TimelineObservacao,
	TimelineLigacao,
	TimelineCNE,
	TimelineVendaGerada,
}

func (t TimelineEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TimelineEventType.
func (t TimelineEventType) IsValid() bool {
	for _, candidate := range validTimelineEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTimelineEventType converts raw input into a TimelineEventType.
func ParseTimelineEventType(value string) (TimelineEventType, error) {
	for _, candidate := range validTimelineEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid timeline event type %q", value)
}
