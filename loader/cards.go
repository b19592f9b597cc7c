package loader

import (
	"reflect"
	"sort"
	"sync"

	conf "card-data/conf"
	provider "card-data/conf/provider"
)

// Cards 按名称管理一组卡片，配置变更时只重建数据源发生变化的卡片。
type Cards struct {
	services *provider.ServiceRegistry

	mu    sync.RWMutex
	cards map[string]*Card
	opts  map[string]conf.CardOptions
}

func NewCards(services *provider.ServiceRegistry) *Cards {
	return &Cards{
		services: services,
		cards:    make(map[string]*Card),
		opts:     make(map[string]conf.CardOptions),
	}
}

// Apply 使卡片集合与配置一致：删除消失的卡片，创建新卡片，重新配置数据源有变化的卡片。
// 单张卡片的配置错误不会中断其它卡片，返回第一个错误。
func (s *Cards) Apply(opts map[string]conf.CardOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, card := range s.cards {
		if _, ok := opts[name]; !ok {
			card.Destroy()
			delete(s.cards, name)
			delete(s.opts, name)
		}
	}

	var first error
	for name, want := range opts {
		card, exists := s.cards[name]
		prev := s.opts[name]
		if !exists {
			card = New(name, s.services)
			s.cards[name] = card
		}
		if !exists || !reflect.DeepEqual(prev.External, want.External) {
			card.SetExternalData(want.External)
		}
		if !exists || !reflect.DeepEqual(prev.Data, want.Data) {
			if err := card.SetData(want.Data); err != nil && first == nil {
				first = err
			}
		}
		s.opts[name] = want
	}
	return first
}

func (s *Cards) Get(name string) (*Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[name]
	return c, ok
}

// Names 返回排序后的卡片名称。
func (s *Cards) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.cards))
	for name := range s.cards {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close 销毁所有卡片。
func (s *Cards) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, card := range s.cards {
		card.Destroy()
		delete(s.cards, name)
		delete(s.opts, name)
	}
}
