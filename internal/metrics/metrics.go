// Package metrics exposes hub counters in the Prometheus exposition format.
package metrics

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/jsherman999/fixihub/internal/push"
)

// Source is anything that reports hub statistics.
type Source interface {
	Name() string
	Stats() push.Stats
}

type family struct {
	name string
	help string
	typ  dto.MetricType
	val  func(push.Stats) float64
}

var families = []family{
	{"fixihub_subscribers", "Currently registered stream subscribers.", dto.MetricType_GAUGE,
		func(s push.Stats) float64 { return float64(s.Subscribers) }},
	{"fixihub_published_total", "Envelopes published.", dto.MetricType_COUNTER,
		func(s push.Stats) float64 { return float64(s.Published) }},
	{"fixihub_delivered_total", "Frames written successfully to a subscriber.", dto.MetricType_COUNTER,
		func(s push.Stats) float64 { return float64(s.Delivered) }},
	{"fixihub_dropped_total", "Subscribers removed after a failed write.", dto.MetricType_COUNTER,
		func(s push.Stats) float64 { return float64(s.Dropped) }},
}

// Gather builds one metric family per counter, labelled by hub.
func Gather(sources ...Source) []*dto.MetricFamily {
	stats := make([]push.Stats, len(sources))
	for i, s := range sources {
		stats[i] = s.Stats()
	}

	out := make([]*dto.MetricFamily, 0, len(families))
	for _, f := range families {
		mf := &dto.MetricFamily{
			Name: ptr(f.name),
			Help: ptr(f.help),
			Type: f.typ.Enum(),
		}
		for i, s := range sources {
			m := &dto.Metric{Label: []*dto.LabelPair{{Name: ptr("hub"), Value: ptr(s.Name())}}}
			v := f.val(stats[i])
			switch f.typ {
			case dto.MetricType_GAUGE:
				m.Gauge = &dto.Gauge{Value: &v}
			default:
				m.Counter = &dto.Counter{Value: &v}
			}
			mf.Metric = append(mf.Metric, m)
		}
		out = append(out, mf)
	}
	return out
}

func Handler(sources ...Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range Gather(sources...) {
			if err := enc.Encode(mf); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if c, ok := enc.(expfmt.Closer); ok {
			_ = c.Close()
		}
	})
}

func ptr[T any](v T) *T { return &v }
