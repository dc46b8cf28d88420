package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "stingraytools"
	subsystem = "manager"
)

// Resolution tiers of GetEntry.
const (
	tierPatch   = "patch"
	tierActive  = "active_archive"
	tierLoaded  = "loaded_archives"
	tierSearch  = "search_index"
	tierMissing = "miss"
)

// Metrics are the manager's counters, held on a private registry so several
// managers can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	archivesLoaded  prometheus.Counter
	patchesCreated  prometheus.Counter
	resolutions     *prometheus.CounterVec
	searchIndexSize prometheus.Gauge
	decodeWarnings  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		archivesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archives_loaded_total",
			Help:      "Containers loaded, base archives and patches alike.",
		}),
		patchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "patches_created_total",
			Help:      "Patches created from the active archive.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entry_resolutions_total",
			Help:      "Entry lookups. Broken down by the tier that answered.",
		}, []string{"tier"}),
		searchIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_index_archives",
			Help:      "Containers listed in the search index.",
		}),
		decodeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_warnings_total",
			Help:      "Data integrity anomalies recovered while decoding entries.",
		}),
	}
	m.Registry.MustRegister(m.archivesLoaded, m.patchesCreated, m.resolutions, m.searchIndexSize, m.decodeWarnings)
	return m
}

// WriteToTextfile dumps the current values in the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
