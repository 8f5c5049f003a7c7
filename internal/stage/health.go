package stage

import "fmt"

// Health is a stage's answer to a readiness probe.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks name not ready. detail is shown to operators verbatim.
func Unhealthy(name, detail string) Health {
	if detail == "" {
		detail = "not ready"
	}
	return Health{Name: name, Detail: detail}
}

// Status renders the one-word or detail form used by `fetchbot status`.
func (h Health) Status() string {
	if h.Ready {
		return "Ready"
	}
	if h.Detail == "" {
		return "not ready"
	}
	return h.Detail
}

func (h Health) String() string {
	return fmt.Sprintf("%s: %s", h.Name, h.Status())
}
