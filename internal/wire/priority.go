package wire

// Priority is a 32-bit value in [0, PriorityMax] governing queue order,
// mode transitions, and intermediate-node cacheability.
type Priority uint32

// Named priority constants (§3). FriendsLow is the high/low-priority
// mode boundary used by abc's check_priority_mode equivalent.
const (
	PriorityEpsilon     Priority = 1
	PriorityTrace       Priority = 1 << 16
	PriorityTraceFwd    Priority = 1 << 15
	PriorityDefaultLow  Priority = 1 << 20
	PriorityDefault     Priority = 1 << 24
	PriorityLocalLow    Priority = 1 << 21
	PriorityFriendsLow  Priority = 1 << 28
	PriorityDefaultHigh Priority = 1 << 30
	PriorityMax         Priority = 0xFFFFFFFF
)

// Sub subtracts d from p, floored at zero (priorities never go negative).
func (p Priority) Sub(d Priority) Priority {
	if d >= p {
		return 0
	}
	return p - d
}
