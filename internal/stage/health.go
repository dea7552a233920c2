package stage

// Health is the readiness verdict for one pipeline capability.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy marks a capability ready to accept work.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks a capability unavailable; detail is surfaced in status output.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// AllReady reports whether every capability in the set is ready.
func AllReady(set []Health) bool {
	for _, h := range set {
		if !h.Ready {
			return false
		}
	}
	return true
}
