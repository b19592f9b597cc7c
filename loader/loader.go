package loader

import (
	"log/slog"
	"sync"
	"time"

	provider "card-data/conf/provider"
)

// Snapshot 是卡片当前的展示模型。
type Snapshot struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	State     string    `json:"state"`
	Busy      bool      `json:"busy"`
	Data      any       `json:"data"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Card 是一个数据消费者，最多拥有一个 DataProvider。
// 重新配置时销毁旧的 DataProvider，旧实例的迟到结果不会影响卡片。
type Card struct {
	name     string
	services *provider.ServiceRegistry
	log      *slog.Logger

	mu        sync.Mutex
	dp        *provider.DataProvider
	path      string
	external  any
	data      any
	busy      bool
	errMsg    string
	updatedAt time.Time
	onUpdate  func(Snapshot)
}

func New(name string, services *provider.ServiceRegistry) *Card {
	return &Card{
		name:     name,
		services: services,
		log:      services.Logger().With("card", name),
		path:     "/",
	}
}

// SetOnUpdate 设置卡片状态变化时的回调。
func (c *Card) SetOnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// SetExternalData 设置外部提供的数据；卡片没有自己的 DataProvider 时展示它。
func (c *Card) SetExternalData(data any) {
	c.mu.Lock()
	c.external = data
	own := c.dp != nil
	c.mu.Unlock()
	if !own {
		c.notify()
	}
}

// SetData 用新的数据源配置替换当前的 DataProvider 并立即触发一次拉取。
// 配置无法解析时卡片退回外部数据，错误记录在快照中，不会返回给调用方以外的地方。
func (c *Card) SetData(cfg *provider.ProviderConfig) error {
	path := "/"
	if cfg != nil && cfg.Path != "" {
		path = cfg.Path
	}

	c.mu.Lock()
	old := c.dp
	c.dp = nil
	c.path = path
	c.data = nil
	c.busy = false
	c.errMsg = ""
	c.mu.Unlock()
	if old != nil {
		old.Destroy()
	}

	dp, err := provider.Create(cfg, c.services)
	if err != nil {
		c.log.Error("create data provider failed", "error", err)
		c.mu.Lock()
		c.errMsg = err.Error()
		c.mu.Unlock()
		c.notify()
		return err
	}
	if dp == nil {
		// 没有自己的数据源，绑定外部数据
		c.notify()
		return nil
	}

	dp.AttachDataChanged(func(data any) { c.updateModel(dp, data) })
	dp.AttachError(func(msg string) { c.handleError(dp, msg) })

	c.mu.Lock()
	c.dp = dp
	c.busy = true
	c.mu.Unlock()

	c.log.Info("data provider attached", "kind", string(dp.Kind()), "provider", dp.ID())
	dp.TriggerDataUpdate()
	return nil
}

func (c *Card) updateModel(from *provider.DataProvider, data any) {
	c.mu.Lock()
	if c.dp != from {
		c.mu.Unlock()
		return
	}
	c.data = data
	c.busy = false
	c.errMsg = ""
	c.updatedAt = time.Now()
	c.mu.Unlock()
	c.notify()
}

func (c *Card) handleError(from *provider.DataProvider, msg string) {
	c.mu.Lock()
	if c.dp != from {
		c.mu.Unlock()
		return
	}
	c.busy = false
	c.errMsg = msg
	c.mu.Unlock()
	c.log.Warn("card data update failed", "error", msg)
	c.notify()
}

// Refresh 重新拉取；没有 DataProvider 时什么都不做。
func (c *Card) Refresh() bool {
	c.mu.Lock()
	dp := c.dp
	if dp != nil {
		c.busy = true
	}
	c.mu.Unlock()
	if dp == nil {
		return false
	}
	dp.TriggerDataUpdate()
	return true
}

// Snapshot 返回按 path 解析后的当前数据。
func (c *Card) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Name:      c.name,
		Busy:      c.busy,
		Error:     c.errMsg,
		UpdatedAt: c.updatedAt,
		State:     provider.StateIdle.String(),
	}
	src := c.external
	if c.dp != nil {
		s.Kind = string(c.dp.Kind())
		s.State = c.dp.State().String()
		src = c.data
	}
	if v, ok := provider.Lookup(src, c.path); ok {
		s.Data = v
	}
	return s
}

// Destroy 销毁卡片持有的 DataProvider。
func (c *Card) Destroy() {
	c.mu.Lock()
	dp := c.dp
	c.dp = nil
	c.onUpdate = nil
	c.mu.Unlock()
	if dp != nil {
		dp.Destroy()
	}
}

func (c *Card) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(c.Snapshot())
	}
}
