package provider

import (
	"fmt"
	"sort"
)

type builder func(cfg *ProviderConfig, services *ServiceRegistry) (Connector, error)

// builders 是进程级的 Connector 构造表，初始化后只读。
var builders = map[Kind]builder{
	KindJSON: func(cfg *ProviderConfig, _ *ServiceRegistry) (Connector, error) {
		return NewStatic(cfg.JSON), nil
	},
	KindRequest: func(cfg *ProviderConfig, s *ServiceRegistry) (Connector, error) {
		c, err := NewRequest(*cfg.Request, s)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	KindCustom: func(cfg *ProviderConfig, s *ServiceRegistry) (Connector, error) {
		c, err := NewCustom(*cfg.Custom, s)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	KindFile: func(cfg *ProviderConfig, _ *ServiceRegistry) (Connector, error) {
		c, err := newFileConnector(*cfg.File)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	KindEtcd: func(cfg *ProviderConfig, _ *ServiceRegistry) (Connector, error) {
		c, err := newEtcdConnector(*cfg.Etcd)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	KindNacos: func(cfg *ProviderConfig, _ *ServiceRegistry) (Connector, error) {
		c, err := newNacosConnector(*cfg.Nacos)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

func lookupBuilder(k Kind) (builder, bool) {
	b, ok := builders[k]
	return b, ok
}

// Kinds 返回所有已知的 Connector 类型。
func Kinds() []Kind {
	out := make([]Kind, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create 根据配置创建 DataProvider。
// 配置中没有任何数据源字段时返回 (nil, nil)：消费者继续使用外部提供的数据。
// 配置无法解析时返回包装了 ErrInvalidConfig 的错误。
func Create(cfg *ProviderConfig, services *ServiceRegistry) (*DataProvider, error) {
	kind, err := cfg.ResolveKind()
	if err != nil {
		return nil, err
	}
	if kind == KindNone {
		return nil, nil
	}
	if services == nil {
		if services, err = NewServiceRegistry(); err != nil {
			return nil, err
		}
	}
	build, _ := lookupBuilder(kind)
	c, err := build(cfg, services)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, kind, err)
	}
	return newDataProvider(*cfg, kind, c, services), nil
}

// NewDataProvider 用现成的 Connector 创建 DataProvider，供自定义接入使用。
func NewDataProvider(c Connector, cfg ProviderConfig, services *ServiceRegistry) (*DataProvider, error) {
	if services == nil {
		var err error
		if services, err = NewServiceRegistry(); err != nil {
			return nil, err
		}
	}
	kind := cfg.Kind
	if kind == KindNone {
		kind = KindCustom
	}
	return newDataProvider(cfg, kind, c, services), nil
}
