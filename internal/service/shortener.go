package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LinkShortener 短链协作方，免费密钥流程用它生成广告跳转链接
type LinkShortener interface {
	Shorten(longURL string) (string, error)
}

// Shortener 当前生效的短链实现，Init 时按配置装配
var Shortener LinkShortener = noopShortener{}

// noopShortener 未配置短链服务时直接返回原始链接
type noopShortener struct{}

func (noopShortener) Shorten(longURL string) (string, error) {
	return longURL, nil
}

// HTTPShortener 通用短链服务客户端
type HTTPShortener struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPShortener(endpoint, apiKey string) *HTTPShortener {
	return &HTTPShortener{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPShortener) Shorten(longURL string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"url":     longURL,
		"api_key": s.apiKey,
	})

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("短链服务返回 %d", resp.StatusCode)
	}

	var out struct {
		ShortURL string `json:"short_url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.ShortURL == "" {
		return "", fmt.Errorf("短链服务响应缺少 short_url")
	}
	return out.ShortURL, nil
}
