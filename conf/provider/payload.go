package provider

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

// formatOf 根据文件扩展名推断格式，默认 YAML。
func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return formatJSON
	case ".txt":
		return formatText
	}
	return formatYAML
}

// sniff 对没有扩展名的负载（etcd value、nacos content）推断格式。
func sniff(b []byte) string {
	t := bytes.TrimSpace(b)
	if len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		return formatJSON
	}
	return formatYAML
}

func decode(b []byte, format string) (any, error) {
	var v any
	switch format {
	case formatJSON:
		if err := sonic.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case formatText:
		return string(b), nil
	default:
		if err := yaml.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	return v, nil
}

// clone 复制 map/slice 结构，使每次通知拿到的数据互不共享。
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	}
	return v
}
