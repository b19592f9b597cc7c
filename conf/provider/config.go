package provider

import (
	"fmt"
	"time"
)

// Kind 是数据源配置的判别字段。
type Kind string

const (
	KindNone    Kind = ""
	KindJSON    Kind = "json"
	KindRequest Kind = "request"
	KindCustom  Kind = "custom"
	KindFile    Kind = "file"
	KindEtcd    Kind = "etcd"
	KindNacos   Kind = "nacos"
)

// ProviderConfig 描述一个数据源。交给 DataProvider 之后视为只读。
type ProviderConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	Kind Kind   `yaml:"kind,omitempty" json:"kind,omitempty"`

	JSON    any            `yaml:"json,omitempty" json:"json,omitempty"`
	Request *RequestConfig `yaml:"request,omitempty" json:"request,omitempty"`
	Custom  *CustomConfig  `yaml:"custom,omitempty" json:"custom,omitempty"`
	File    *FileConfig    `yaml:"file,omitempty" json:"file,omitempty"`
	Etcd    *EtcdConfig    `yaml:"etcd,omitempty" json:"etcd,omitempty"`
	Nacos   *NacosConfig   `yaml:"nacos,omitempty" json:"nacos,omitempty"`

	UpdateInterval time.Duration `yaml:"updateInterval,omitempty" json:"updateInterval,omitempty"`
	Watch          bool          `yaml:"watch,omitempty" json:"watch,omitempty"`
}

type RequestConfig struct {
	URL        string            `yaml:"url" json:"url"`
	Method     string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Parameters map[string]any    `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Body       string            `yaml:"body,omitempty" json:"body,omitempty"`
	DataType   string            `yaml:"dataType,omitempty" json:"dataType,omitempty"` // json|text
	Timeout    time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type CustomConfig struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
	Key       string   `yaml:"key" json:"key"`
	Username  string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password  string   `yaml:"password,omitempty" json:"password,omitempty"`
}

type NacosConfig struct {
	Servers   []string `yaml:"servers" json:"servers"` // host:port
	Namespace string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Group     string   `yaml:"group,omitempty" json:"group,omitempty"`
	DataID    string   `yaml:"dataId" json:"dataId"`
}

// detectOrder 是未显式给出 kind 时的判别优先级。
var detectOrder = []Kind{KindRequest, KindCustom, KindJSON, KindFile, KindEtcd, KindNacos}

// has 报告配置中是否存在 k 对应的数据源段。
func (c *ProviderConfig) has(k Kind) bool {
	switch k {
	case KindRequest:
		return c.Request != nil
	case KindCustom:
		return c.Custom != nil
	case KindJSON:
		return c.JSON != nil
	case KindFile:
		return c.File != nil
	case KindEtcd:
		return c.Etcd != nil
	case KindNacos:
		return c.Nacos != nil
	}
	return false
}

// ResolveKind 返回配置对应的 Connector 类型。
// 显式 kind 优先；没有任何数据源字段时返回 KindNone 且无错误。
func (c *ProviderConfig) ResolveKind() (Kind, error) {
	if c == nil {
		return KindNone, nil
	}
	if c.Kind != KindNone {
		if _, ok := lookupBuilder(c.Kind); !ok {
			return KindNone, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, c.Kind)
		}
		if !c.has(c.Kind) {
			return KindNone, fmt.Errorf("%w: kind %q has no %q section", ErrInvalidConfig, c.Kind, c.Kind)
		}
		return c.Kind, nil
	}
	for _, k := range detectOrder {
		if c.has(k) {
			return k, nil
		}
	}
	return KindNone, nil
}
