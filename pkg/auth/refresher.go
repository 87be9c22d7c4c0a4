package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Refresher 用 refresh token 换取新的凭证
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// RefresherFunc 函数适配器
type RefresherFunc func(ctx context.Context, refreshToken string) (*Credential, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	return f(ctx, refreshToken)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// maxRefreshBody 读取错误响应时最多保留的字节数
const maxRefreshBody = 4 << 10

// HTTPRefresher POST <endpoint>/refresh
type HTTPRefresher struct {
	url    string
	client *http.Client
}

// NewHTTPRefresher 创建刷新器，client 为 nil 时使用 http.DefaultClient
func NewHTTPRefresher(endpoint string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRefresher{
		url:    strings.TrimRight(endpoint, "/") + "/refresh",
		client: client,
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "auth: encode refresh request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "auth: build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "auth: refresh request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "auth: decode refresh response")
	}
	if out.Token == "" {
		return nil, errors.New("auth: refresh response has no token")
	}
	return &Credential{AccessToken: out.Token, RefreshToken: out.RefreshToken}, nil
}
