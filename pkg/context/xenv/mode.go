package xenv

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// =============================================================================
// Mode 类型定义
// =============================================================================

// Mode 运行模式
type Mode string

const (
	// Production 生产模式：机器可读渲染
	Production Mode = "production"

	// Development 开发模式：人类可读渲染
	Development Mode = "development"
)

// String 返回模式字符串
func (m Mode) String() string {
	return string(m)
}

// IsValid 判断是否为已知模式
func (m Mode) IsValid() bool {
	return m == Production || m == Development
}

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrNotInitialized xenv 未初始化
	ErrNotInitialized = errors.New("xenv: not initialized, call Init() first")

	// ErrAlreadyInitialized 重复初始化
	ErrAlreadyInitialized = errors.New("xenv: already initialized")

	// ErrInvalidMode 模式非法（不是 production/development）
	ErrInvalidMode = errors.New("xenv: invalid mode")
)

// EnvMode 环境变量名
const EnvMode = "APP_ENV"

// =============================================================================
// 全局状态
// =============================================================================

var (
	// 设计决策: 初始化后值不变，atomic.Value 提供无锁读取；
	// globalMu 只串行化写路径。
	globalMode  atomic.Value // 存储 Mode
	globalMu    sync.Mutex
	initialized atomic.Bool
)

// =============================================================================
// 初始化函数
// =============================================================================

// Init 从环境变量 APP_ENV 初始化运行模式。
//
// 值为 "production"（大小写不敏感、忽略首尾空白）时为 Production，
// 其余任何值（包括未设置）均为 Development。
// 重复调用返回 ErrAlreadyInitialized。
func Init() error {
	return InitWith(Detect())
}

// MustInit 同 Init，失败时 panic。仅用于 main() 启动阶段。
func MustInit() {
	if err := Init(); err != nil {
		panic(err)
	}
}

// InitWith 使用指定的模式初始化。
//
// 错误优先级：ErrAlreadyInitialized > ErrInvalidMode。
func InitWith(m Mode) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if initialized.Load() {
		return ErrAlreadyInitialized
	}
	if !m.IsValid() {
		return fmt.Errorf("%w: %q (expected production or development)", ErrInvalidMode, m)
	}

	// 先写值，再设置 initialized 标志
	globalMode.Store(m)
	initialized.Store(true)
	return nil
}

// Detect 读取 APP_ENV 推断运行模式，不修改全局状态。
func Detect() Mode {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(EnvMode)), string(Production)) {
		return Production
	}
	return Development
}

// =============================================================================
// 全局访问函数
// =============================================================================

// Current 返回当前运行模式。
//
// 未初始化时返回 Development，与未设置 APP_ENV 的语义一致。
// 需要区分"未初始化"的场景请使用 RequireMode。
func Current() Mode {
	if m, err := RequireMode(); err == nil {
		return m
	}
	return Development
}

// IsProduction 判断是否为生产模式
func IsProduction() bool {
	return Current() == Production
}

// IsInitialized 返回是否已初始化
func IsInitialized() bool {
	return initialized.Load()
}

// RequireMode 返回当前运行模式，未初始化时返回 ErrNotInitialized。
func RequireMode() (Mode, error) {
	if !initialized.Load() {
		return "", ErrNotInitialized
	}
	// m == "" 捕获 Reset 并发窗口：先读到 initialized=true，再读到已清空的值
	m, ok := globalMode.Load().(Mode)
	if !ok || m == "" {
		return "", ErrNotInitialized
	}
	return m, nil
}

// =============================================================================
// 解析函数
// =============================================================================

// Parse 严格解析模式字符串（大小写不敏感、忽略首尾空白）。
//
// 与 Detect 不同，未知值返回 ErrInvalidMode，用于配置文件等需要显式报错的场景。
func Parse(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: %q (expected production or development)", ErrInvalidMode, s)
	}
	return m, nil
}
