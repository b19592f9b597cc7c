package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Doer 是 RequestConnector 需要的 HTTP 能力，*client.Client 满足该接口。
type Doer interface {
	Do(ctx context.Context, req *protocol.Request, resp *protocol.Response) error
}

// Resolver 是注册到 ServiceRegistry 的自定义数据解析函数。
type Resolver func(ctx context.Context, req Request, params map[string]any) (any, error)

// ServiceRegistry 持有所有 Connector 共享的资源。
// 构造完成后只读，Factory 创建的全部 DataProvider 共用同一个实例。
type ServiceRegistry struct {
	http      Doer
	limiter   *rate.Limiter
	flights   *singleflight.Group
	resolvers map[string]Resolver
	scheduler Scheduler
	metrics   *Metrics
	logger    *slog.Logger

	dialTimeout time.Duration
	tlsConfig   *tls.Config
}

type ServiceOption func(*ServiceRegistry)

// WithHTTPClient 替换默认的 hertz 客户端。
func WithHTTPClient(d Doer) ServiceOption {
	return func(s *ServiceRegistry) { s.http = d }
}

// WithDialTimeout 设置默认 hertz 客户端的建连超时，d <= 0 时保留默认值。
func WithDialTimeout(d time.Duration) ServiceOption {
	return func(s *ServiceRegistry) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithTLSConfig 设置默认 hertz 客户端访问 https 地址时使用的 TLS 配置。
func WithTLSConfig(cfg *tls.Config) ServiceOption {
	return func(s *ServiceRegistry) { s.tlsConfig = cfg }
}

// WithRateLimit 限制所有 RequestConnector 的总请求速率，perSecond <= 0 表示不限制。
func WithRateLimit(perSecond int) ServiceOption {
	return func(s *ServiceRegistry) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
}

// WithResolver 注册一个自定义解析函数。
func WithResolver(name string, r Resolver) ServiceOption {
	return func(s *ServiceRegistry) { s.resolvers[name] = r }
}

func WithScheduler(sch Scheduler) ServiceOption {
	return func(s *ServiceRegistry) { s.scheduler = sch }
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *ServiceRegistry) { s.metrics = m }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ServiceRegistry) { s.logger = l }
}

// NewServiceRegistry 构建共享服务；未提供 HTTP 客户端时创建一个同时支持 http 与 https 的 hertz 客户端。
func NewServiceRegistry(opts ...ServiceOption) (*ServiceRegistry, error) {
	s := &ServiceRegistry{
		flights:     &singleflight.Group{},
		resolvers:   make(map[string]Resolver),
		scheduler:   GoScheduler{},
		logger:      slog.Default(),
		dialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		if s.tlsConfig == nil {
			s.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		// netpoll 不支持 TLS，https 需要标准库网络层的 dialer
		c, err := client.NewClient(
			client.WithDialTimeout(s.dialTimeout),
			client.WithDialer(standard.NewDialer()),
			client.WithTLSConfig(s.tlsConfig),
		)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		s.http = c
	}
	return s, nil
}

func (s *ServiceRegistry) HTTPClient() Doer { return s.http }

func (s *ServiceRegistry) Scheduler() Scheduler { return s.scheduler }

func (s *ServiceRegistry) Metrics() *Metrics { return s.metrics }

func (s *ServiceRegistry) Logger() *slog.Logger { return s.logger }

// Resolver 按名称查找自定义解析函数。
func (s *ServiceRegistry) Resolver(name string) (Resolver, bool) {
	r, ok := s.resolvers[name]
	return r, ok
}

// wait 在共享限流器上等待一个令牌。
func (s *ServiceRegistry) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
