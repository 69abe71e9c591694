// Package client клиент heating-svc поверх Connect с повторами и bearer-токеном.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/sethvargo/go-retry"

	"heatnet/pkg/heatingv1"
)

// ClientConfig настройки клиента
type ClientConfig struct {
	Address      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// Token bearer-токен, пустой = без авторизации
	Token string
}

// DefaultClientConfig возвращает конфигурацию по умолчанию
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address:      "http://localhost:8080",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Client обёртка над сгенерированным клиентом
type Client struct {
	cfg  ClientConfig
	http *http.Client
	rpc  *heatingv1.HeatingServiceClient
}

// New создаёт клиент. Address без схемы считается http://.
func New(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("client: address is required")
	}
	if !strings.Contains(cfg.Address, "://") {
		cfg.Address = "http://" + cfg.Address
	}
	if _, err := url.Parse(cfg.Address); err != nil {
		return nil, fmt.Errorf("client: invalid address: %w", err)
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	interceptors := []connect.Interceptor{RetryInterceptor(cfg.MaxRetries, cfg.RetryBackoff)}
	if cfg.Token != "" {
		interceptors = append(interceptors, BearerInterceptor(cfg.Token))
	}

	return &Client{
		cfg:  cfg,
		http: hc,
		rpc:  heatingv1.NewHeatingServiceClient(hc, cfg.Address, connect.WithInterceptors(interceptors...)),
	}, nil
}

// retryable коды, после которых запрос можно повторить
func retryable(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeUnavailable, connect.CodeAborted, connect.CodeDeadlineExceeded:
		return true
	}
	return false
}

// RetryInterceptor повторяет вызов с постоянной паузой не более maxRetries раз
func RetryInterceptor(maxRetries int, backoff time.Duration) connect.UnaryInterceptorFunc {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			var resp connect.AnyResponse
			b := retry.WithMaxRetries(uint64(maxRetries), retry.NewConstant(backoff))

			err := retry.Do(ctx, b, func(ctx context.Context) error {
				var err error
				resp, err = next(ctx, req)
				if err != nil && retryable(err) && ctx.Err() == nil {
					return retry.RetryableError(err)
				}
				return err
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

// BearerInterceptor добавляет заголовок Authorization
func BearerInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func (c *Client) BuildNetwork(ctx context.Context, req *heatingv1.BuildNetworkRequest) (*heatingv1.BuildNetworkResponse, error) {
	resp, err := c.rpc.BuildNetwork(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Solve(ctx context.Context, req *heatingv1.SolveRequest) (*heatingv1.SolveResponse, error) {
	resp, err := c.rpc.Solve(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SolveWithTimeout ограничивает один вызов Solve
func (c *Client) SolveWithTimeout(ctx context.Context, req *heatingv1.SolveRequest, timeout time.Duration) (*heatingv1.SolveResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Solve(ctx, req)
}

func (c *Client) GetRun(ctx context.Context, id string) (*heatingv1.GetRunResponse, error) {
	resp, err := c.rpc.GetRun(ctx, connect.NewRequest(&heatingv1.GetRunRequest{ID: id}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListRuns(ctx context.Context, req *heatingv1.ListRunsRequest) (*heatingv1.ListRunsResponse, error) {
	resp, err := c.rpc.ListRuns(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) DeleteRun(ctx context.Context, id string) error {
	_, err := c.rpc.DeleteRun(ctx, connect.NewRequest(&heatingv1.DeleteRunRequest{ID: id}))
	return err
}

// ReportError ответ сервиса с ошибкой при выгрузке отчёта
type ReportError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Family  string `json:"family"`
	Message string `json:"message"`
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report: %d %s: %s", e.Status, e.Code, e.Message)
}

// DownloadReport скачивает отчёт в формате csv, xlsx или pdf
func (c *Client) DownloadReport(ctx context.Context, id, format string) ([]byte, error) {
	u := c.cfg.Address + "/v1/runs/" + url.PathEscape(id) + "/report"
	if format != "" {
		u += "?format=" + url.QueryEscape(format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeReportError(resp.StatusCode, body)
	}
	return body, nil
}
