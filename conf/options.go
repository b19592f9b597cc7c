package conf

import (
	"time"

	provider "card-data/conf/provider"
)

// Options 表示服务的核心配置结构：监听地址、日志、共享 HTTP 客户端与卡片定义。
type Options struct {
	Server ServerOptions          `yaml:"server" json:"server"`
	Log    LogOptions             `yaml:"log" json:"log"`
	HTTP   HTTPOptions            `yaml:"http" json:"http"`
	Cards  map[string]CardOptions `yaml:"cards" json:"cards"`
}

type ServerOptions struct {
	Bind string `yaml:"bind" json:"bind"`
}

type LogOptions struct {
	Level string `yaml:"level" json:"level"` // debug|info|warn|error
}

type HTTPOptions struct {
	DialTimeout time.Duration `yaml:"dialTimeout" json:"dialTimeout"`
	RateLimit   int           `yaml:"rateLimit" json:"rateLimit"` // 每秒请求数，0 不限制
}

// CardOptions 描述一张卡片的数据来源。
// Data 为空或没有数据源字段时，卡片使用 External 作为外部提供的数据。
type CardOptions struct {
	Data     *provider.ProviderConfig `yaml:"data,omitempty" json:"data,omitempty"`
	External any                      `yaml:"external,omitempty" json:"external,omitempty"`
}
