package notify

import "fmt"

// Severity 为通知级别。
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// style 决定标题前缀、附加标签与优先级。
type style struct {
	prefix   string
	tag      string
	priority int
}

var severityStyles = map[Severity]style{
	SeveritySuccess: {prefix: "✅", tag: "white_check_mark", priority: 3},
	SeverityWarning: {prefix: "⚠️", tag: "warning", priority: 4},
	SeverityError:   {prefix: "🚨", tag: "rotating_light", priority: 5},
	SeverityInfo:    {prefix: "ℹ️", tag: "information_source", priority: 3},
}

// Message 为一条推送消息。
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority int
	Click    string
}

// DeliveryError 表示推送端返回非 2xx。
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: ntfy HTTP %d: %s", e.StatusCode, e.Body)
}
