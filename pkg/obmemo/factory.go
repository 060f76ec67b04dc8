package obmemo

// Memo memoizes fn with an unbounded cache
func Memo(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicyBasic, opts)
}

// MemoFIFO memoizes fn, evicting the oldest entry once more than Limit
// (default 32) are cached
func MemoFIFO(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicyFIFO, opts)
}

// MemoLRU memoizes fn, evicting the least recently used entry once more than
// Limit (default 32) are cached
func MemoLRU(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicyLRU, opts)
}

// MemoLU memoizes fn, evicting every least used entry once Limit (default 32)
// entries are cached. Entries tied at the lowest use count leave together.
func MemoLU(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicyLU, opts)
}

// MemoTTL memoizes fn, dropping entries TTL (default 3s) after they were
// computed. Expired entries are purged by the next miss.
func MemoTTL(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicyTTL, opts)
}

// MemoSoft memoizes fn, dropping entries once the garbage collector reclaims
// their values. The most recently used values are kept reachable; see
// WithSoftRetention.
func MemoSoft(fn Func, opts ...Option) (*Memoizer, error) {
	return build(fn, PolicySoft, opts)
}

func build(fn Func, policy Policy, opts []Option) (*Memoizer, error) {
	config := NewDefaultConfig().WithPolicy(policy)
	for _, opt := range opts {
		opt(config)
	}
	return New(fn, config)
}
