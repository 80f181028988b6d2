// 配置热重载。
//
// 只有少数字段可以在运行时生效，其余变更只记录并提示需要重启。
// 只读闸门等安全相关配置永远不会在运行时改变。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/sanitize"
)

// hotReloadable 运行时可生效的字段
var hotReloadable = map[string]bool{
	"Log.Level": true,
}

// IsHotReloadable 判断字段路径是否可热重载
func IsHotReloadable(path string) bool {
	return hotReloadable[path]
}

// ConfigChange 单个字段的变更
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 配置重载后调用，changes 只包含已生效的变更
type ReloadCallback func(current *Config, changes []ConfigChange)

// Reloader 监听配置文件并应用可热重载的字段
type Reloader struct {
	mu        sync.RWMutex
	current   *Config
	loader    *Loader
	path      string
	watcher   *FileWatcher
	callbacks []ReloadCallback
	logger    *zap.Logger
	pollEvery time.Duration
}

// NewReloader 创建重载器，从 path 重新加载配置
func NewReloader(current *Config, path string, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		current:   current,
		loader:    NewLoader().WithConfigPath(path),
		path:      path,
		logger:    logger.With(zap.String("component", "config_reloader")),
		pollEvery: time.Second,
	}
}

// WithPollInterval 设置文件轮询间隔
func (r *Reloader) WithPollInterval(d time.Duration) *Reloader {
	r.pollEvery = d
	return r
}

// WithLoader 替换加载器，例如注入环境变量来源
func (r *Reloader) WithLoader(l *Loader) *Reloader {
	r.loader = l.WithConfigPath(r.path)
	return r
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 开始监听配置文件
func (r *Reloader) Start(ctx context.Context) error {
	w, err := NewFileWatcher(r.path, WithWatcherLogger(r.logger), WithPollInterval(r.pollEvery))
	if err != nil {
		return err
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			return
		}
		if _, err := r.Reload(); err != nil {
			r.logger.Error("config reload failed, keeping current config", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Reload 重新读取并校验配置文件，只应用可热重载的字段
func (r *Reloader) Reload() ([]ConfigChange, error) {
	next, err := r.loader.Load()
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	old := r.current
	changes := DiffConfig(old, next)
	updated := *old
	var applied []ConfigChange
	for _, ch := range changes {
		r.logChange(ch)
		if ch.RequiresRestart {
			continue
		}
		if err := setPath(reflect.ValueOf(&updated).Elem(), ch.Path, reflect.ValueOf(next).Elem()); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		applied = append(applied, ch)
	}
	r.current = &updated
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	if len(applied) > 0 {
		for _, cb := range callbacks {
			cb(&updated, applied)
		}
	}
	r.logger.Info("configuration reloaded",
		zap.Int("changes", len(changes)),
		zap.Int("applied", len(applied)))
	return changes, nil
}

func (r *Reloader) logChange(ch ConfigChange) {
	fields := []zap.Field{
		zap.String("path", ch.Path),
		zap.Bool("requires_restart", ch.RequiresRestart),
	}
	if !isSensitivePath(ch.Path) {
		fields = append(fields, zap.Any("old_value", ch.OldValue), zap.Any("new_value", ch.NewValue))
	}
	if ch.RequiresRestart {
		r.logger.Warn("configuration change requires restart", fields...)
		return
	}
	r.logger.Info("configuration changed", fields...)
}

func isSensitivePath(path string) bool {
	if strings.HasPrefix(path, "Auth.") || strings.HasPrefix(path, "HTTPAuth.") {
		return true
	}
	if path == "Audit.DSN" || path == "Audit.RedisPassword" {
		return true
	}
	leaf := path[strings.LastIndex(path, ".")+1:]
	return sanitize.IsSensitiveKey(leaf)
}

// DiffConfig 返回两个配置之间变化的叶子字段
func DiffConfig(old, next *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(old).Elem(), reflect.ValueOf(next).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		o, n := oldVal.Field(i), newVal.Field(i)
		if o.Kind() == reflect.Struct {
			compareStructs(path, o, n, changes)
			continue
		}
		if !reflect.DeepEqual(o.Interface(), n.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        o.Interface(),
				NewValue:        n.Interface(),
				RequiresRestart: !hotReloadable[path],
			})
		}
	}
}

// setPath 把 src 中 path 指向的字段复制到 dst
func setPath(dst reflect.Value, path string, src reflect.Value) error {
	for _, name := range strings.Split(path, ".") {
		dst = dst.FieldByName(name)
		src = src.FieldByName(name)
		if !dst.IsValid() || !src.IsValid() {
			return fmt.Errorf("unknown config field %s", path)
		}
	}
	dst.Set(src)
	return nil
}
