package machine

// PushIDAllocator hands out monotonically increasing push_id values.
// Exported wrapper over pushIDAllocator for use by ppg/engine, which
// owns one allocator shared across all push machines it creates.
type PushIDAllocator struct {
	inner pushIDAllocator
}

// Next returns the next push_id, starting at 1.
func (a *PushIDAllocator) Next() int64 {
	return a.inner.Next()
}
