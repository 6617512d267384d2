package engine

// Run audit log: an ordered record of what the pipeline decided at each
// event, kept alongside the trade ledger for forensics.

type RunEventType int

const (
	EventOrderSubmit RunEventType = iota
	EventOrderFill
	EventPartialFill
	EventFillUnavailable
	EventRiskRejection
	EventRegimeChange
)

func (t RunEventType) String() string {
	switch t {
	case EventOrderSubmit:
		return "order_submit"
	case EventOrderFill:
		return "order_fill"
	case EventPartialFill:
		return "partial_fill"
	case EventFillUnavailable:
		return "fill_unavailable"
	case EventRiskRejection:
		return "risk_rejection"
	default:
		return "regime_change"
	}
}

type RunEvent struct {
	Ts      int64
	Type    RunEventType
	Symbol  string
	Details map[string]string
}

type RunEventLog struct {
	Events []RunEvent
}

func (l *RunEventLog) Append(e RunEvent) { l.Events = append(l.Events, e) }

func (l *RunEventLog) Count(t RunEventType) int {
	n := 0
	for _, e := range l.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
