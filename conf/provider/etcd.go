package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConnector 从 etcd 指定 key 读取数据，并订阅变更。
type EtcdConnector struct {
	Endpoints   []string
	Key         string
	Username    string
	Password    string
	DialTimeout time.Duration

	mu  sync.Mutex
	cli *clientv3.Client
}

func NewEtcd(endpoints []string, key string, username, password string) *EtcdConnector {
	return &EtcdConnector{Endpoints: endpoints, Key: key, Username: username, Password: password, DialTimeout: 5 * time.Second}
}

func newEtcdConnector(cfg EtcdConfig) (*EtcdConnector, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd.endpoints can't be empty")
	}
	if cfg.Key == "" {
		return nil, errors.New("etcd.key can't be empty")
	}
	return NewEtcd(cfg.Endpoints, cfg.Key, cfg.Username, cfg.Password), nil
}

func (p *EtcdConnector) ensureClient() (*clientv3.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		return p.cli, nil
	}
	cfg := clientv3.Config{Endpoints: p.Endpoints, DialTimeout: p.DialTimeout}
	if p.Username != "" || p.Password != "" {
		cfg.Username = p.Username
		cfg.Password = p.Password
	}
	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}
	p.cli = cli
	return cli, nil
}

func (p *EtcdConnector) Fetch(ctx context.Context, _ Request) (any, error) {
	cli, err := p.ensureClient()
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := cli.Get(ctx, p.Key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %q: %w", p.Key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key %q not found: %w", p.Key, ErrNotFound)
	}
	b := resp.Kvs[0].Value
	return decode(b, sniff(b))
}

func (p *EtcdConnector) Watch(ctx context.Context, onChange func()) error {
	cli, err := p.ensureClient()
	if err != nil {
		return err
	}
	go func() {
		wch := cli.Watch(ctx, p.Key)
		for range wch {
			// 任意事件触发重新拉取
			onChange()
		}
	}()
	return nil
}

// Close 释放 etcd 客户端。
func (p *EtcdConnector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli == nil {
		return nil
	}
	err := p.cli.Close()
	p.cli = nil
	return err
}
