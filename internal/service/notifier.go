package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// EventNotifier 事件通知协作方（邮件/IM 等由下游消费）。
// 只在核心事务提交之后调用，失败绝不影响已提交的业务结果
type EventNotifier interface {
	Send(event string, payload interface{}) error
}

// Notifier 当前生效的通知实现，Init 时按配置装配
var Notifier EventNotifier = logNotifier{}

// logNotifier 未配置通知端点时只记日志
type logNotifier struct{}

func (logNotifier) Send(event string, payload interface{}) error {
	logger.Info().Str("event", event).Interface("payload", payload).Msg("事件通知")
	return nil
}

// HTTPNotifier 把事件投递到配置的 HTTP 端点
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

func NewHTTPNotifier(endpoint string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNotifier) Send(event string, payload interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return err
	}

	resp, err := n.client.Post(n.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// notifyAsync 事务提交后异步发送，失败只记日志
func notifyAsync(event string, payload interface{}) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("event", event).Msg("事件通知异常")
			}
		}()
		if err := Notifier.Send(event, payload); err != nil {
			logger.Warn().Err(err).Str("event", event).Msg("事件通知发送失败")
		}
	}()
}
