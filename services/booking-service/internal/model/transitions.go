package model

const (
	ActionConfirm    = "confirm"
	ActionCancel     = "cancel"
	ActionReschedule = "reschedule"
	ActionComplete   = "complete"
)

var transitionMap = map[string][]Status{
	ActionConfirm:    {StatusPending},
	ActionCancel:     {StatusConfirmed},
	ActionReschedule: {StatusConfirmed},
	ActionComplete:   {StatusConfirmed},
}

func ValidTransition(action string, from Status) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
