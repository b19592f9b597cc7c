package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State 是 DataProvider 的生命周期状态。
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DataProvider 为一个消费者编排一个 Connector：异步拉取，只投递最近一次触发的结果。
//
// 每次 TriggerDataUpdate 分配一个递增的请求序号；结算时序号不是最新的结果会被丢弃，
// Destroy 之后到达的结果同样被丢弃。同一次拉取只会触发 dataChanged 或 error 中的一个。
// 通知总是在 Scheduler 的任务中发出，从不在 TriggerDataUpdate 内同步发出。
type DataProvider struct {
	id       string
	kind     Kind
	cfg      ProviderConfig
	services *ServiceRegistry
	log      *slog.Logger

	mu        sync.Mutex
	connector Connector
	state     State
	data      any
	errMsg    string
	updatedAt time.Time
	seq       uint64
	cancel    context.CancelFunc // 当前拉取
	stop      context.CancelFunc // 定时刷新与监听
	started   bool
	destroyed bool
	onData    []func(any)
	onError   []func(string)

	// 串行化同一实例的通知投递。
	emitMu sync.Mutex
}

func newDataProvider(cfg ProviderConfig, kind Kind, c Connector, services *ServiceRegistry) *DataProvider {
	id := uuid.NewString()
	p := &DataProvider{
		id:        id,
		kind:      kind,
		cfg:       cfg,
		services:  services,
		log:       services.Logger().With("provider", id, "kind", string(kind)),
		connector: c,
	}
	services.Metrics().providerCreated()
	return p
}

// AttachDataChanged 注册数据更新回调。
func (p *DataProvider) AttachDataChanged(fn func(data any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.destroyed && fn != nil {
		p.onData = append(p.onData, fn)
	}
}

// AttachError 注册错误回调，参数为可读的诊断信息。
func (p *DataProvider) AttachError(fn func(message string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.destroyed && fn != nil {
		p.onError = append(p.onError, fn)
	}
}

// TriggerDataUpdate 发起一次拉取并取代仍在进行中的拉取。
// 没有 Connector 或已销毁时什么都不做。
func (p *DataProvider) TriggerDataUpdate() {
	p.mu.Lock()
	if p.destroyed || p.connector == nil {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	if p.cancel != nil {
		// 尽力中止旧请求；即使传输层忽略取消，旧结果也会因序号过期被丢弃。
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.state = StateLoading
	c := p.connector
	if !p.started {
		p.started = true
		p.startBackground()
	}
	p.mu.Unlock()

	p.log.Debug("fetch scheduled", "seq", seq)
	p.services.Scheduler().Schedule(func() { p.run(ctx, seq, c) })
}

func (p *DataProvider) run(ctx context.Context, seq uint64, c Connector) {
	start := time.Now()
	data, err := p.fetch(ctx, c)
	p.settle(seq, data, err, time.Since(start))
}

// fetch 调用 Connector，并把 panic 转换为失败结果。
func (p *DataProvider) fetch(ctx context.Context, c Connector) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panicked: %v", r)
		}
	}()
	return c.Fetch(ctx, Request{Path: p.Path()})
}

// settle 结算一次拉取。只有最新且未销毁的结果计入 fetches 指标，被取代的拉取计入 discarded。
func (p *DataProvider) settle(seq uint64, data any, err error, took time.Duration) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		p.services.Metrics().observeDiscard(p.kind, "destroyed")
		p.log.Debug("result dropped after destroy", "seq", seq)
		return
	}
	if seq != p.seq {
		latest := p.seq
		p.mu.Unlock()
		p.services.Metrics().observeDiscard(p.kind, "superseded")
		p.log.Debug("stale result dropped", "seq", seq, "latest", latest)
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.updatedAt = time.Now()
	p.services.Metrics().observeFetch(p.kind, took, err)

	var onData []func(any)
	var onError []func(string)
	var msg string
	if err != nil {
		msg = err.Error()
		p.state = StateFailed
		p.errMsg = msg
		onError = append(onError, p.onError...)
	} else {
		p.state = StateReady
		p.data = data
		p.errMsg = ""
		onData = append(onData, p.onData...)
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("fetch failed", "seq", seq, "error", msg)
		for _, fn := range onError {
			if p.Destroyed() {
				return
			}
			fn(msg)
		}
		return
	}
	p.log.Debug("data changed", "seq", seq)
	for _, fn := range onData {
		if p.Destroyed() {
			return
		}
		fn(data)
	}
}

// startBackground 启动定时刷新与源变更监听，调用方持有 p.mu。
func (p *DataProvider) startBackground() {
	if p.cfg.UpdateInterval <= 0 && !p.cfg.Watch {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stop = cancel

	if p.cfg.UpdateInterval > 0 {
		go p.poll(ctx, p.cfg.UpdateInterval)
	}
	if p.cfg.Watch {
		w, ok := p.connector.(Watcher)
		if !ok {
			p.log.Warn("connector does not support watch")
			return
		}
		go func() {
			if err := w.Watch(ctx, p.TriggerDataUpdate); err != nil {
				p.log.Warn("start watch failed", "error", err)
			}
		}()
	}
}

func (p *DataProvider) poll(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.TriggerDataUpdate()
		}
	}
}

// Destroy 标记实例已销毁：进行中的拉取结果被静默丢弃，释放 Connector。
// 已经开始执行的回调会执行完，Destroy 返回后不会再开始新的回调。可重复调用。
func (p *DataProvider) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	c := p.connector
	p.connector = nil
	p.onData = nil
	p.onError = nil
	p.mu.Unlock()

	if closer, ok := c.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.log.Warn("close connector failed", "error", err)
		}
	}
	p.services.Metrics().providerDestroyed()
	p.log.Debug("provider destroyed")
}

func (p *DataProvider) ID() string { return p.id }

func (p *DataProvider) Kind() Kind { return p.kind }

// Path 返回消费者绑定的数据路径，默认 "/"。
func (p *DataProvider) Path() string {
	if p.cfg.Path == "" {
		return "/"
	}
	return p.cfg.Path
}

func (p *DataProvider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Data 返回最近一次成功拉取的数据。
func (p *DataProvider) Data() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// Err 返回最近一次失败的诊断信息；成功后清空。
func (p *DataProvider) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

func (p *DataProvider) UpdatedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updatedAt
}

func (p *DataProvider) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}
