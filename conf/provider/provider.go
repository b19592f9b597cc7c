package provider

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig 表示数据源配置无法解析为任何 Connector。
	ErrInvalidConfig = errors.New("invalid data provider config")
	// ErrNotImplemented 是基础 Connector 的默认返回。
	ErrNotImplemented = errors.New("fetch is not implemented")
	// ErrNotFound 表示数据源中不存在请求的资源。
	ErrNotFound = errors.New("resource not found")
)

// Request 是一次拉取的参数。
type Request struct {
	Path   string
	Params map[string]any
}

// Connector 是一个最小的数据源接口：异步调用方在自己的调度轮次中调用 Fetch。
// 可预期的失败（网络、状态码、缺失的 key）以 error 返回，不允许 panic。
type Connector interface {
	Fetch(ctx context.Context, req Request) (any, error)
}

// Watcher 是可选能力：数据源发生变更时回调 onChange，ctx 结束时停止监听。
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// BaseConnector 可嵌入尚未实现 Fetch 的 Connector。
type BaseConnector struct{}

func (BaseConnector) Fetch(context.Context, Request) (any, error) {
	return nil, ErrNotImplemented
}
