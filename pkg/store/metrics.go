package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store-level counters. Deduplicated puts are counted separately so
// cache efficiency of the corpus pipeline is visible.
var (
	putsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panini",
		Subsystem: "store",
		Name:      "puts_total",
		Help:      "Objects written to the content-addressed store.",
	}, []string{"type", "deduplicated"})

	getsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panini",
		Subsystem: "store",
		Name:      "gets_total",
		Help:      "Objects read from the content-addressed store.",
	}, []string{"type"})

	corruptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panini",
		Subsystem: "store",
		Name:      "corruptions_total",
		Help:      "Hash mismatches detected on read.",
	}, []string{"type"})
)

func recordPut(typ ObjectType, deduplicated bool) {
	label := "false"
	if deduplicated {
		label = "true"
	}
	putsTotal.WithLabelValues(string(typ), label).Inc()
}

func recordGet(typ ObjectType) {
	getsTotal.WithLabelValues(string(typ)).Inc()
}

func recordCorruption(typ ObjectType) {
	corruptionsTotal.WithLabelValues(string(typ)).Inc()
}
