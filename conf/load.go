package conf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	provider "card-data/conf/provider"

	"gopkg.in/yaml.v3"
)

// Load 读取并解析 YAML 配置文件。
func Load(path string) (Options, error) {
	if path == "" {
		return Options{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse 展开环境变量后解析配置，填充默认值并校验。
func Parse(b []byte) (Options, error) {
	var opts Options
	b = []byte(os.ExpandEnv(string(b)))

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return opts, fmt.Errorf("parse yaml: %w", err)
	}

	applyDefaults(&opts)

	// 基础校验
	if err := Validate(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadFromConnector 通过 Connector 拉取配置文档并解析为 Options。
// 文档可以来自本地文件、etcd 或 nacos。
func LoadFromConnector(ctx context.Context, c provider.Connector) (Options, error) {
	doc, err := c.Fetch(ctx, provider.Request{Path: "/"})
	if err != nil {
		return Options{}, err
	}
	if doc == nil {
		return Options{}, errors.New("no config content from connector")
	}
	// 重新编码后走同一条解析路径，以便展开环境变量与校验未知字段。
	b, err := yaml.Marshal(doc)
	if err != nil {
		return Options{}, fmt.Errorf("encode config: %w", err)
	}
	return Parse(b)
}

func applyDefaults(o *Options) {
	if o.Server.Bind == "" {
		o.Server.Bind = ":8080"
	}
	if o.Log.Level == "" {
		o.Log.Level = "info"
	}
	if o.Cards == nil {
		o.Cards = map[string]CardOptions{}
	}
}

// Validate 对关键字段进行最小校验。卡片数据源只检查能否判别出类型，不建立连接。
func Validate(o Options) error {
	if o.Server.Bind == "" {
		return errors.New("server.bind can't be empty")
	}
	if _, err := ParseLevel(o.Log.Level); err != nil {
		return err
	}
	if o.HTTP.RateLimit < 0 {
		return errors.New("http.rateLimit can't be negative")
	}
	for name, c := range o.Cards {
		if strings.TrimSpace(name) == "" {
			return errors.New("card name can't be empty")
		}
		if _, err := c.Data.ResolveKind(); err != nil {
			return fmt.Errorf("card %q: %w", name, err)
		}
	}
	return nil
}

// ParseLevel 把配置中的日志级别转换为 slog.Level。
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}
