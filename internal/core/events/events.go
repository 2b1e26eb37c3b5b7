// Package events 资格扫描事件
package events

type Type string

const (
	CreateEnabledNamespace          Type = "create_enabled_namespace_event"
	ProcessInvalidEnabledNamespace  Type = "process_invalid_enabled_namespace_event"
	MarkRepositoryAsPendingDeletion Type = "mark_repository_as_pending_deletion_event"
)

// Types 所有已注册的事件类型
func Types() []Type {
	return []Type{CreateEnabledNamespace, ProcessInvalidEnabledNamespace, MarkRepositoryAsPendingDeletion}
}

func (t Type) Valid() bool {
	for _, v := range Types() {
		if v == t {
			return true
		}
	}
	return false
}

// Event 扫描事件, LastProcessedID 为空表示从头开始
type Event struct {
	Type            Type   `json:"-"`
	LastProcessedID *int64 `json:"last_processed_id,omitempty"`
}

func New(t Type) Event {
	return Event{Type: t}
}

// Continuation 达到 LIMIT 后的续扫事件
func Continuation(t Type, lastProcessedID int64) Event {
	return Event{Type: t, LastProcessedID: &lastProcessedID}
}

// Cursor 起始游标, 0 表示最小 id 之前
func (e Event) Cursor() int64 {
	if e.LastProcessedID == nil {
		return 0
	}
	return *e.LastProcessedID
}
