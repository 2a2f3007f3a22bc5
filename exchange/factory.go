package exchange

import (
	"fmt"
	"sort"
	"sync"
)

// NewExchangeFunc 交易所适配器构造函数，由具体适配器包在 init 中注册
// 通过注册表解耦，避免 exchange 包反向依赖适配器实现
type NewExchangeFunc func(apiKey, secretKey string, testnet bool) (IExchange, error)

var (
	constructorsMu sync.RWMutex
	constructors   = make(map[string]NewExchangeFunc)
)

// Register 注册交易所适配器构造函数
func Register(name string, fn NewExchangeFunc) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[name] = fn
}

// New 创建指定名称的交易所实例
func New(name, apiKey, secretKey string, testnet bool) (IExchange, error) {
	constructorsMu.RLock()
	fn, ok := constructors[name]
	constructorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("不支持的交易所: %s（已注册: %v）", name, registered())
	}
	return fn(apiKey, secretKey, testnet)
}

func registered() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
