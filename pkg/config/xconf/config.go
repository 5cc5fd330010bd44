package xconf

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式
type Format string

// 支持的格式
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Option 加载选项
type Option func(*options)

type options struct {
	delim    string
	tag      string
	defaults map[string]any
}

// WithDelim 键分隔符，默认 "."
func WithDelim(delim string) Option {
	return func(o *options) {
		if delim != "" {
			o.delim = delim
		}
	}
}

// WithTag Unmarshal 使用的结构体标签，默认 "koanf"
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// WithDefaults 默认值，键为分隔符连接的路径（如 "log.level"）。
// 文件中的值覆盖默认值，重载时默认值重新生效。
func WithDefaults(defaults map[string]any) Option {
	copied := maps.Clone(defaults)
	return func(o *options) {
		o.defaults = copied
	}
}

// Config 配置快照的持有者，并发安全
type Config struct {
	path   string
	format Format
	opts   options
	k      atomic.Pointer[koanf.Koanf]
	mu     sync.Mutex // 串行化 Reload，防止旧数据覆盖新数据
}

// Load 加载 path 指向的配置文件，格式按扩展名判断（.yaml/.yml/.json）。
// path 为空时只包含默认值。
func Load(path string, opts ...Option) (*Config, error) {
	c := newConfig(opts)
	if path == "" {
		k, err := c.build(nil)
		if err != nil {
			return nil, err
		}
		c.k.Store(k)
		return c, nil
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	c.path = path
	c.format = format
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromBytes 从字节数据加载配置，不支持 Reload 和 Watch
func FromBytes(data []byte, format Format, opts ...Option) (*Config, error) {
	if format != FormatYAML && format != FormatJSON {
		return nil, ErrUnsupportedFormat
	}
	c := newConfig(opts)
	c.format = format
	k, err := c.build(data)
	if err != nil {
		return nil, err
	}
	c.k.Store(k)
	return c, nil
}

func newConfig(opts []Option) *Config {
	o := options{delim: ".", tag: "koanf"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Config{opts: o}
}

// build 以默认值为底加载 data
func (c *Config) build(data []byte) (*koanf.Koanf, error) {
	k := koanf.New(c.opts.delim)
	for key, v := range c.opts.defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("%w: default %q: %w", ErrParseFailed, key, err)
		}
	}
	if len(data) == 0 {
		return k, nil
	}

	var parser koanf.Parser = yaml.Parser()
	if c.format == FormatJSON {
		parser = json.Parser()
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return k, nil
}

// Reload 重新读取配置文件。失败时保留当前配置。
func (c *Config) Reload() error {
	if c.path == "" {
		return ErrNotWatchable
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k, err := c.build(data)
	if err != nil {
		return err
	}
	c.k.Store(k)
	return nil
}

// Client 返回当前 koanf 快照。Reload 后旧快照仍可用，但数据已过期，不要长期持有。
func (c *Config) Client() *koanf.Koanf {
	return c.k.Load()
}

// Unmarshal 将 path 下的配置反序列化到 target，path 为空表示全部
func (c *Config) Unmarshal(path string, target any) error {
	if err := c.Client().UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Path 配置文件路径，FromBytes 创建的为空
func (c *Config) Path() string {
	return c.path
}

// Format 配置格式
func (c *Config) Format() Format {
	return c.format
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}
