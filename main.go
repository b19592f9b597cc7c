package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	conf "card-data/conf"
	provider "card-data/conf/provider"
	"card-data/loader"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main 负责解析参数、选择配置来源、创建卡片并启动 HTTP 服务与监听。
// 配置解析由 conf 包提供；数据源与 DataProvider 由 provider 包提供。
func main() {
	source := flag.String("source", "file", "config source: file|etcd|nacos")
	cfgPath := flag.String("config", "./config.yaml", "config file path (for file source)")
	cardsDir := flag.String("cards-dir", "", "directory of per-card YAML files (optional)")
	etcdEndpoints := flag.String("etcd-endpoints", "", "comma-separated etcd endpoints (for etcd source)")
	etcdKey := flag.String("etcd-key", "", "etcd key holding YAML config (for etcd source)")
	etcdUser := flag.String("etcd-user", "", "etcd username (optional)")
	etcdPass := flag.String("etcd-pass", "", "etcd password (optional)")
	nacosServers := flag.String("nacos-servers", "", "comma-separated nacos server addrs host:port (for nacos source)")
	nacosNS := flag.String("nacos-namespace", "", "nacos namespace id (optional)")
	nacosGroup := flag.String("nacos-group", "DEFAULT_GROUP", "nacos group")
	nacosDataID := flag.String("nacos-dataid", "", "nacos dataId holding YAML config")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// 初始化配置来源
	var src provider.Connector
	switch *source {
	case "file":
		src = provider.NewFile(*cfgPath)
	case "etcd":
		eps := strings.Split(strings.TrimSpace(*etcdEndpoints), ",")
		src = provider.NewEtcd(nonEmpty(eps), *etcdKey, *etcdUser, *etcdPass)
	case "nacos":
		eps := strings.Split(strings.TrimSpace(*nacosServers), ",")
		src = provider.NewNacos(nonEmpty(eps), *nacosNS, *nacosGroup, *nacosDataID)
	default:
		slog.Error("unknown source", "source", *source)
		return
	}

	load := func() (conf.Options, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		opts, err := conf.LoadFromConnector(ctx, src)
		if err != nil {
			return opts, err
		}
		if *cardsDir != "" {
			cards, err := conf.LoadDir(*cardsDir)
			if err != nil {
				return opts, err
			}
			if err := conf.MergeCards(&opts, cards); err != nil {
				return opts, err
			}
		}
		return opts, nil
	}

	// 加载配置
	opts, err := load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return
	}
	if lv, err := conf.ParseLevel(opts.Log.Level); err == nil {
		level.Set(lv)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := provider.NewServiceRegistry(
		provider.WithDialTimeout(opts.HTTP.DialTimeout),
		provider.WithRateLimit(opts.HTTP.RateLimit),
		provider.WithMetrics(provider.NewMetrics(reg)),
		provider.WithLogger(slog.Default()),
	)
	if err != nil {
		slog.Error("init services failed", "error", err)
		return
	}

	cards := loader.NewCards(services)
	defer cards.Close()
	if err := cards.Apply(opts.Cards); err != nil {
		// 出错的卡片退回外部数据，服务照常启动
		slog.Warn("some cards failed to configure", "error", err)
	}

	h := server.New(
		server.WithHostPorts(opts.Server.Bind),
		server.WithDisableDefaultDate(true),
		server.WithDisablePrintRoute(true),
		server.WithExitWaitTime(1*time.Second),
	)

	// 监听来源变更，动态刷新卡片
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if w, ok := src.(provider.Watcher); ok {
		if err := w.Watch(watchCtx, func() {
			newOpts, err := load()
			if err != nil {
				slog.Error("reload config failed", "error", err)
				return
			}
			if lv, err := conf.ParseLevel(newOpts.Log.Level); err == nil {
				level.Set(lv)
			}
			if err := cards.Apply(newOpts.Cards); err != nil {
				slog.Warn("some cards failed to configure", "error", err)
			}
			slog.Info("config reloaded", "cards", len(newOpts.Cards))
		}); err != nil {
			slog.Error("start config watch failed", "error", err)
		}
	}

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	h.GET("/cards", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string][]string{"cards": cards.Names()})
	})

	h.GET("/cards/:name", func(ctx context.Context, c *app.RequestContext) {
		card, ok := cards.Get(c.Param("name"))
		if !ok {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "card not found"})
			return
		}
		c.JSON(consts.StatusOK, card.Snapshot())
	})

	h.POST("/cards/:name/refresh", func(ctx context.Context, c *app.RequestContext) {
		card, ok := cards.Get(c.Param("name"))
		if !ok {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "card not found"})
			return
		}
		if !card.Refresh() {
			c.JSON(consts.StatusConflict, map[string]string{"error": "card has no data provider"})
			return
		}
		c.JSON(consts.StatusAccepted, card.Snapshot())
	})

	h.GET("/metrics", adaptor.HertzHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	h.Spin()
}

// nonEmpty 过滤空字符串元素
func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		s := strings.TrimSpace(it)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
