// Package notification 仓库索引/删除失败告警
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/model"
)

// Type 通知类型
type Type string

const (
	NotifyIndexingFailed Type = "indexing_failed" // 索引失败, 仓库进入 failed
	NotifyDeletionFailed Type = "deletion_failed" // shard 删除失败, 保持 pending_deletion
)

var titles = map[Type]string{
	NotifyIndexingFailed: "仓库索引失败",
	NotifyDeletionFailed: "仓库索引删除失败",
}

// Message 通知消息
type Message struct {
	Type      Type                   `json:"type"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// RepositoryMessage 仓库失败消息
func RepositoryMessage(repo *model.Repository, notifyType Type, reason string) *Message {
	title, ok := titles[notifyType]
	if !ok {
		title = "代码索引通知"
	}

	return &Message{
		Type:  notifyType,
		Title: title,
		Content: fmt.Sprintf("**仓库ID**: %d\n**项目ID**: %d\n**Connection**: %d\n**原因**: %s",
			repo.ID, repo.ProjectID, repo.ConnectionID, reason),
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"repository_id": repo.ID,
			"project_id":    repo.ProjectID,
			"color":         "red",
		},
	}
}

// LarkNotifier Lark 机器人 webhook, 未启用或未配置地址时静默丢弃
type LarkNotifier struct {
	webhookURL string
	enabled    bool
	logger     *zap.Logger
	client     *http.Client
}

func NewLarkNotifier(webhookURL string, enabled bool, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		webhookURL: webhookURL,
		enabled:    enabled && webhookURL != "",
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type larkText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type larkElement struct {
	Tag  string   `json:"tag"`
	Text larkText `json:"text"`
}

type larkCard struct {
	MsgType string `json:"msg_type"`
	Card    struct {
		Header struct {
			Title    larkText `json:"title"`
			Template string   `json:"template"`
		} `json:"header"`
		Elements []larkElement `json:"elements"`
	} `json:"card"`
}

func newLarkCard(msg *Message) *larkCard {
	card := &larkCard{MsgType: "interactive"}
	card.Card.Header.Title = larkText{Tag: "plain_text", Content: msg.Title}
	card.Card.Header.Template = "grey"
	if c, ok := msg.Extra["color"].(string); ok {
		card.Card.Header.Template = c
	}
	card.Card.Elements = []larkElement{
		{Tag: "div", Text: larkText{Tag: "lark_md", Content: msg.Content}},
		{Tag: "div", Text: larkText{Tag: "plain_text", Content: "时间: " + msg.Timestamp.Format(time.DateTime)}},
	}
	return card
}

func (n *LarkNotifier) Send(ctx context.Context, msg *Message) error {
	if !n.enabled {
		return nil
	}

	body, err := json.Marshal(newLarkCard(msg))
	if err != nil {
		return fmt.Errorf("序列化 Lark 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("调用 Lark webhook 失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lark webhook status %d", resp.StatusCode)
	}

	n.logger.Debug("Lark 通知已发送", zap.String("type", string(msg.Type)))
	return nil
}

// MultiNotifier 逐个发送, 单个渠道失败不影响其他渠道
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

// Send 汇总所有渠道的错误
func (m *MultiNotifier) Send(ctx context.Context, msg *Message) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			m.logger.Warn("发送通知失败", zap.String("type", string(msg.Type)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 只写日志
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg *Message) error {
	n.logger.Warn(msg.Title,
		zap.String("type", string(msg.Type)),
		zap.Any("repository_id", msg.Extra["repository_id"]),
		zap.String("content", msg.Content))
	return nil
}
