// Package mempool provides sized pools for the per-pixel and per-point scratch buffers
// that are rebuilt every time a new anchor frame is set.
package mempool

import (
	"sync"
)

var (
	float32Pools sync.Map // key: size class (int), value: *sync.Pool
	boolPools    sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return pAny.(*sync.Pool)
}

func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	buf, ok := poolFor[T](pools, cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// Foreign buffer with an odd capacity: let the GC have it.
		return
	}
	poolFor[T](pools, cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32 returns a zeroed []float32 of length n. Return it with PutFloat32.
func GetFloat32(n int) []float32 { return get[float32](&float32Pools, n) }

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) { put(&float32Pools, buf) }

// GetBool returns a zeroed []bool of length n. Return it with PutBool.
func GetBool(n int) []bool { return get[bool](&boolPools, n) }

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) { put(&boolPools, buf) }
