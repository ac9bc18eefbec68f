// Package events 發布鏈接生命週期事件到 NATS
//
// Subject 命名：{prefix}.{event type}，例如
//
//	shortlink.link.created
//	shortlink.link.deleted
//
// 使用 core NATS（at-most-once）：事件用於下游統計、審計等旁路消費，
// 丟失不影響短網址本身的正確性，不需要 JetStream 的持久化開銷。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/koopa0/shortlink/internal/shortener"
)

// DefaultSubjectPrefix 預設 subject 前綴
const DefaultSubjectPrefix = "shortlink"

// publisher 只需要 nats.Conn 的發布能力
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS 基於 NATS 的事件發布器
type NATS struct {
	conn   publisher
	nc     *nats.Conn // Connect 創建時持有，用於 Close
	prefix string
}

// Connect 連接 NATS 並創建發布器
//
// 斷線後無限重連；重連期間的發布由 nats.go 緩衝。
func Connect(url, prefix string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("shortlink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := NewNATS(nc, prefix)
	p.nc = nc
	return p, nil
}

// NewNATS 使用已有連接創建發布器，連接的生命週期由調用方管理
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	return newPublisher(nc, prefix)
}

func newPublisher(conn publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

// Subject 事件對應的 subject
func (p *NATS) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish 序列化為 JSON 並發布
func (p *NATS) Publish(ctx context.Context, event shortener.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close 排空並關閉自己創建的連接
func (p *NATS) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
