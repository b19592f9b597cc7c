package provider

import (
	"context"
	"errors"
	"fmt"
)

// CustomConnector 把拉取委托给 ServiceRegistry 中按名称注册的 Resolver。
// 名称在每次拉取时解析，注册表只读，无需加锁。
type CustomConnector struct {
	name     string
	params   map[string]any
	services *ServiceRegistry
}

func NewCustom(cfg CustomConfig, services *ServiceRegistry) (*CustomConnector, error) {
	if cfg.Name == "" {
		return nil, errors.New("custom.name can't be empty")
	}
	return &CustomConnector{name: cfg.Name, params: cfg.Params, services: services}, nil
}

func (c *CustomConnector) Fetch(ctx context.Context, req Request) (any, error) {
	var r Resolver
	if c.services != nil {
		r, _ = c.services.Resolver(c.name)
	}
	if r == nil {
		return nil, fmt.Errorf("custom resolver %q is not registered: %w", c.name, ErrNotFound)
	}
	return r(ctx, req, c.params)
}
