package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// waitForSocket 等待socket文件出现
// 进程提前退出、超时或ctx取消时返回错误
func waitForSocket(ctx context.Context, socketPath string, exited <-chan struct{}, timeout time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(socketPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(socketPath), err)
	}

	// 添加监听后再检查一次，避免遗漏创建事件
	if _, err := os.Stat(socketPath); err == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if filepath.Clean(event.Name) == filepath.Clean(socketPath) && event.Op&fsnotify.Create != 0 {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			return fmt.Errorf("watcher error: %w", err)
		case <-exited:
			return fmt.Errorf("server process exited")
		case <-timer.C:
			return fmt.Errorf("timed out after %s waiting for %s", timeout, socketPath)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
