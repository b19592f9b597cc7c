package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

const defaultNacosGroup = "DEFAULT_GROUP"

// NacosConnector 从 Nacos Config 服务读取数据，并订阅变更。
type NacosConnector struct {
	ServerAddrs []string // host:port
	NamespaceID string
	Group       string
	DataID      string

	timeoutMs uint64
	mu        sync.Mutex
	cli       config_client.IConfigClient
}

func NewNacos(serverAddrs []string, namespaceID, group, dataID string) *NacosConnector {
	if group == "" {
		group = defaultNacosGroup
	}
	return &NacosConnector{ServerAddrs: serverAddrs, NamespaceID: namespaceID, Group: group, DataID: dataID, timeoutMs: 3000}
}

func newNacosConnector(cfg NacosConfig) (*NacosConnector, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nacos.servers can't be empty")
	}
	if cfg.DataID == "" {
		return nil, errors.New("nacos.dataId can't be empty")
	}
	return NewNacos(cfg.Servers, cfg.Namespace, cfg.Group, cfg.DataID), nil
}

func (p *NacosConnector) ensureClient() (config_client.IConfigClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		return p.cli, nil
	}
	var sc []constant.ServerConfig
	for _, addr := range p.ServerAddrs {
		host, port := splitHostPort(addr)
		sc = append(sc, *constant.NewServerConfig(host, port))
	}
	cc := constant.ClientConfig{
		NamespaceId:         p.NamespaceID,
		TimeoutMs:           p.timeoutMs,
		NotLoadCacheAtStart: true,
	}
	c, err := clients.NewConfigClient(vo.NacosClientParam{ClientConfig: &cc, ServerConfigs: sc})
	if err != nil {
		return nil, err
	}
	p.cli = c
	return c, nil
}

// Fetch 读取配置；nacos SDK 不接受 ctx，调用方取消时只丢弃结果。
func (p *NacosConnector) Fetch(ctx context.Context, _ Request) (any, error) {
	cli, err := p.ensureClient()
	if err != nil {
		return nil, fmt.Errorf("nacos client: %w", err)
	}
	content, err := cli.GetConfig(vo.ConfigParam{DataId: p.DataID, Group: p.Group})
	if err != nil {
		return nil, fmt.Errorf("nacos get %s/%s: %w", p.Group, p.DataID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("nacos config %s/%s not found: %w", p.Group, p.DataID, ErrNotFound)
	}
	return decode([]byte(content), sniff([]byte(content)))
}

func (p *NacosConnector) Watch(ctx context.Context, onChange func()) error {
	cli, err := p.ensureClient()
	if err != nil {
		return err
	}
	param := vo.ConfigParam{
		DataId: p.DataID,
		Group:  p.Group,
		OnChange: func(namespace, group, dataId, data string) {
			onChange()
		},
	}
	// SDK 内部维护长连接，不需要主动循环
	if err := cli.ListenConfig(param); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = cli.CancelListenConfig(vo.ConfigParam{DataId: p.DataID, Group: p.Group})
	}()
	return nil
}

// Close 关闭 nacos 客户端。
func (p *NacosConnector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		p.cli.CloseClient()
		p.cli = nil
	}
	return nil
}

// splitHostPort parses "host:port" into host string and port uint64.
func splitHostPort(addr string) (string, uint64) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return "", 0
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return s, 0
	}
	p, _ := strconv.ParseUint(parts[1], 10, 64)
	return parts[0], p
}
