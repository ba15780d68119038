package register

import "sync"

// funcRegister 保存 init 阶段登记的回调，按登记顺序执行
type funcRegister struct {
	handlers map[any][]any
	locker   sync.RWMutex
}

var fr = &funcRegister{
	handlers: make(map[any][]any),
}

type Handler[T any] func(T)

func RegisterFunc[T any](key any, handler Handler[T]) {
	fr.locker.Lock()
	defer fr.locker.Unlock()
	fr.handlers[key] = append(fr.handlers[key], handler)
}

// ResolveFuncHandlers 只返回签名匹配 T 的回调
func ResolveFuncHandlers[T any](key any) []Handler[T] {
	fr.locker.RLock()
	defer fr.locker.RUnlock()

	var result []Handler[T]
	for _, v := range fr.handlers[key] {
		if h, ok := v.(Handler[T]); ok {
			result = append(result, h)
		}
	}
	return result
}

// Apply 依次执行 key 下的所有回调
func Apply[T any](key any, target T) int {
	handlers := ResolveFuncHandlers[T](key)
	for _, h := range handlers {
		h(target)
	}
	return len(handlers)
}
