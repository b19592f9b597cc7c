package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 256
)

// RequestConnector 通过共享的 HTTP 客户端拉取远端数据。
type RequestConnector struct {
	cfg      RequestConfig
	method   string
	services *ServiceRegistry
}

func NewRequest(cfg RequestConfig, services *ServiceRegistry) (*RequestConnector, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("request.url can't be empty")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse request.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("request.url scheme %q is not supported", u.Scheme)
	}
	if services == nil || services.HTTPClient() == nil {
		return nil, errors.New("request connector needs an http client")
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = consts.MethodGet
	}
	switch cfg.DataType {
	case "", formatJSON, formatText:
	default:
		return nil, fmt.Errorf("request.dataType %q is not supported", cfg.DataType)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &RequestConnector{cfg: cfg, method: method, services: services}, nil
}

func (c *RequestConnector) Fetch(ctx context.Context, req Request) (any, error) {
	if err := c.services.wait(ctx); err != nil {
		return nil, fmt.Errorf("request %s %s: %w", c.method, c.cfg.URL, err)
	}
	target, body, err := c.build(req)
	if err != nil {
		return nil, err
	}
	if !queryMethod(c.method) || body != nil {
		return c.do(ctx, target, body)
	}

	// 相同的并发 GET 只发一次；共享的请求不随单个调用方取消。
	ch := c.services.flights.DoChan(c.flightKey(target), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()
		return c.do(fctx, target, nil)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return clone(r.Val), nil
	}
}

// build 合并配置参数与请求参数，返回目标地址和请求体。
func (c *RequestConnector) build(req Request) (string, []byte, error) {
	params := make(map[string]any, len(c.cfg.Parameters)+len(req.Params))
	for k, v := range c.cfg.Parameters {
		params[k] = v
	}
	for k, v := range req.Params {
		params[k] = v
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", nil, fmt.Errorf("parse request.url: %w", err)
	}
	if c.cfg.Body != "" {
		if queryMethod(c.method) {
			addQuery(u, params)
		}
		return u.String(), []byte(c.cfg.Body), nil
	}
	if queryMethod(c.method) {
		addQuery(u, params)
		return u.String(), nil, nil
	}
	if len(params) == 0 {
		return u.String(), nil, nil
	}
	b, err := sonic.Marshal(params)
	if err != nil {
		return "", nil, fmt.Errorf("encode request parameters: %w", err)
	}
	return u.String(), b, nil
}

func (c *RequestConnector) do(ctx context.Context, target string, body []byte) (any, error) {
	hreq := protocol.AcquireRequest()
	hresp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(hreq)
	defer protocol.ReleaseResponse(hresp)

	hreq.SetOptions(config.WithRequestTimeout(c.cfg.Timeout))
	hreq.SetMethod(c.method)
	hreq.SetRequestURI(target)
	for k, v := range c.cfg.Headers {
		hreq.Header.Set(k, v)
	}
	if body != nil {
		if !hasHeader(c.cfg.Headers, "Content-Type") {
			hreq.Header.Set("Content-Type", "application/json")
		}
		hreq.SetBody(body)
	}

	if err := c.services.HTTPClient().Do(ctx, hreq, hresp); err != nil {
		return nil, fmt.Errorf("request %s %s: %w", c.method, target, err)
	}
	// hresp 会被回收，必须先复制响应体。
	b := append([]byte(nil), hresp.Body()...)
	code := hresp.StatusCode()
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("request %s %s failed: status %d: %s", c.method, target, code, excerpt(b))
	}
	if c.cfg.DataType == formatText {
		return string(b), nil
	}
	if len(b) == 0 {
		return nil, nil
	}
	return decode(b, formatJSON)
}

// flightKey 标识可以共享的请求：方法、地址、请求头、返回格式和超时都相同。
func (c *RequestConnector) flightKey(target string) string {
	var b strings.Builder
	b.WriteString(c.method)
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteByte(' ')
	b.WriteString(c.cfg.DataType)
	b.WriteByte(' ')
	b.WriteString(c.cfg.Timeout.String())
	names := make([]string, 0, len(c.cfg.Headers))
	for k := range c.cfg.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		// 名称与取值都做引号转义，避免不同的请求头拼出相同的 key
		b.WriteByte('\n')
		b.WriteString(strconv.Quote(strings.ToLower(k)))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(c.cfg.Headers[k]))
	}
	return b.String()
}

func queryMethod(m string) bool {
	return m == consts.MethodGet || m == consts.MethodHead || m == consts.MethodDelete
}

func addQuery(u *url.URL, params map[string]any) {
	if len(params) == 0 {
		return
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
