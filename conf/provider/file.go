package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileDebounce = 200 * time.Millisecond

// FileConnector 从本地文件读取一个 YAML/JSON 文档，支持 fsnotify 热更新。
type FileConnector struct {
	Path string
}

func NewFile(path string) *FileConnector {
	return &FileConnector{Path: path}
}

func newFileConnector(cfg FileConfig) (*FileConnector, error) {
	if cfg.Path == "" {
		return nil, errors.New("file.path can't be empty")
	}
	return NewFile(cfg.Path), nil
}

// Read 返回文件原始内容。
func (p *FileConnector) Read() ([]byte, error) {
	b, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", p.Path, ErrNotFound)
		}
		return nil, fmt.Errorf("read file %q: %w", p.Path, err)
	}
	return b, nil
}

func (p *FileConnector) Fetch(ctx context.Context, _ Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := p.Read()
	if err != nil {
		return nil, err
	}
	return decode(b, formatOf(p.Path))
}

// Watch 监听文件变更，ctx 结束时关闭 watcher。
func (p *FileConnector) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.Path); err != nil {
		_ = watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		// 防抖：最后一个事件之后静默 fileDebounce 才回调，避免截断与写入之间读到半个文件
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		bump := func() {
			if timer == nil {
				timer = time.AfterFunc(fileDebounce, onChange)
			} else {
				timer.Reset(fileDebounce)
			}
		}
		readded := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					bump()
				}
				// 文件被移除或改名后原路径失去监听，等待重建后重新添加；
				// 回调由重新添加成功后的那一次 bump 负责，原子替换只回调一次
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					go p.rewatch(ctx, watcher, readded)
				}
			case <-readded:
				bump()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// 忽略错误，保持监听
			}
		}
	}()
	return nil
}

// rewatch 在文件重建后重新加入监听，并通知监听循环补发一次变更。
func (p *FileConnector) rewatch(ctx context.Context, watcher *fsnotify.Watcher, readded chan<- struct{}) {
	t := time.NewTicker(fileDebounce)
	defer t.Stop()
	for i := 0; i < 25; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := os.Stat(p.Path); err != nil {
			continue
		}
		if err := watcher.Add(p.Path); err == nil {
			select {
			case readded <- struct{}{}:
			default:
			}
		}
		return
	}
}
