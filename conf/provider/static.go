package provider

import "context"

// StaticConnector 返回配置中的固定负载。
type StaticConnector struct {
	Payload any
}

func NewStatic(payload any) *StaticConnector {
	return &StaticConnector{Payload: payload}
}

func (c *StaticConnector) Fetch(ctx context.Context, _ Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return clone(c.Payload), nil
}
