package obs

import "expvar"

// Counters holds fulfillment outcome counters, published under
// /debug/vars as "fulfillment".
var Counters = expvar.NewMap("fulfillment")

// CounterValue returns the current value of a counter, or 0 if unset.
func CounterValue(name string) int64 {
	v, ok := Counters.Get(name).(*expvar.Int)
	if !ok || v == nil {
		return 0
	}
	return v.Value()
}

// Snapshot copies all counters into a plain map.
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	Counters.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}
