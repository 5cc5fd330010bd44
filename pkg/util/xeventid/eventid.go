package xeventid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrSeed 实例随机值生成失败。
var ErrSeed = errors.New("xeventid: failed to generate instance seed")

const (
	// counterSize 计数器字节数
	counterSize = 8

	// SeedSize 实例随机值字节数
	SeedSize = 16

	// rawSize 编码前的总字节数
	rawSize = counterSize + SeedSize

	// Size 编码后的 ID 长度（24 字节 → 32 字符）
	Size = rawSize / 3 * 4
)

// alphabet d64 字符表，已按码点升序排列。
// 有序字符表是编码保序的前提，不得调整顺序。
const alphabet = ".0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// Generator 单调 ID 生成器。
//
// 零值不可用，请通过 [New] 创建。每个进程（或每个逻辑分片）持有一个实例，
// 通过依赖注入传递给需要的组件。
type Generator struct {
	counter atomic.Uint64
	seed    [SeedSize]byte
}

// New 创建生成器。
//
// 默认使用 UUIDv4 作为实例随机值，计数器从 0 开始。
func New(opts ...Option) (*Generator, error) {
	cfg := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	g := &Generator{}
	if cfg.seedSet {
		g.seed = cfg.seed
	} else {
		u, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSeed, err)
		}
		g.seed = u
	}
	g.counter.Store(cfg.counter)
	return g, nil
}

// Next 返回下一个 ID。
//
// 同一实例上先后调用的返回值按字典序严格递增（计数器回绕除外）。
func (g *Generator) Next() string {
	n := g.counter.Add(1)

	var raw [rawSize]byte
	binary.BigEndian.PutUint64(raw[:counterSize], n)
	copy(raw[counterSize:], g.seed[:])

	var out [Size]byte
	encodeTo(out[:0], raw[:])
	return string(out[:])
}

// Seed 返回实例随机值的副本。
func (g *Generator) Seed() [SeedSize]byte {
	return g.seed
}

// Encode 使用 d64 字符表编码任意字节序列。
//
// 相同输入总是得到相同输出；等长输入的编码结果保持字节序。
func Encode(data []byte) string {
	return string(encodeTo(make([]byte, 0, EncodedLen(len(data))), data))
}

// EncodedLen 返回 n 字节输入的编码长度。
func EncodedLen(n int) int {
	size := n / 3 * 4
	if rem := n % 3; rem > 0 {
		size += rem + 1
	}
	return size
}

// encodeTo 将 data 编码后追加到 dst。
// 每 3 字节拆成 4 个 6 bit 分组，高位在前；hang 保存跨字节的剩余位。
func encodeTo(dst, data []byte) []byte {
	var hang byte
	for i, v := range data {
		switch i % 3 {
		case 0:
			dst = append(dst, alphabet[v>>2])
			hang = (v & 0x03) << 4
		case 1:
			dst = append(dst, alphabet[hang|v>>4])
			hang = (v & 0x0f) << 2
		case 2:
			dst = append(dst, alphabet[hang|v>>6], alphabet[v&0x3f])
			hang = 0
		}
	}
	if len(data)%3 != 0 {
		dst = append(dst, alphabet[hang])
	}
	return dst
}
