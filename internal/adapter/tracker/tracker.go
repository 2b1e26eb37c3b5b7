// Package tracker 把索引器产出的 hash 写入检索后端的 ref 跟踪队列
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go"
)

// RefTracker ref 按 project id 路由
type RefTracker interface {
	Track(ctx context.Context, projectID int64, refs ...string) error
}

type refsPayload struct {
	ProjectID int64    `json:"project_id"`
	Routing   string   `json:"routing"`
	Refs      []string `json:"refs"`
}

// NatsTracker 发布到 <prefix>.refs.<partition_number>, 下游 embedding 流水线按分区消费
type NatsTracker struct {
	nc             *nats.Conn
	prefix         string
	partitionCount int
}

func NewNatsTracker(nc *nats.Conn, prefix string, partitionCount int) *NatsTracker {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	return &NatsTracker{nc: nc, prefix: prefix, partitionCount: partitionCount}
}

func (t *NatsTracker) Subject(projectID int64) string {
	return fmt.Sprintf("%s.refs.%d", t.prefix, projectID%int64(t.partitionCount))
}

func (t *NatsTracker) Track(_ context.Context, projectID int64, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	data, err := json.Marshal(refsPayload{
		ProjectID: projectID,
		Routing:   strconv.FormatInt(projectID, 10),
		Refs:      refs,
	})
	if err != nil {
		return fmt.Errorf("marshal refs: %w", err)
	}
	if err := t.nc.Publish(t.Subject(projectID), data); err != nil {
		return fmt.Errorf("track refs for project %d: %w", projectID, err)
	}
	return nil
}

// TrackCall 一次 Track 调用
type TrackCall struct {
	ProjectID int64
	Refs      []string
}

// MemoryTracker 记录调用, 用于测试
type MemoryTracker struct {
	mu    sync.Mutex
	Calls []TrackCall
	Err   error
}

func (t *MemoryTracker) Track(_ context.Context, projectID int64, refs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.Calls = append(t.Calls, TrackCall{ProjectID: projectID, Refs: append([]string(nil), refs...)})
	return nil
}

func (t *MemoryTracker) TrackCalls() []TrackCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TrackCall(nil), t.Calls...)
}
