package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "transfer",
		Name:      "exports_total",
		Help:      "Total number of document exports broken down by entity and result.",
	}, []string{"entity", "result"})

	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "transfer",
		Name:      "imports_total",
		Help:      "Total number of document imports broken down by entity and result.",
	}, []string{"entity", "result"})

	patientMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "transfer",
		Name:      "patient_matches_total",
		Help:      "Patients resolved during import broken down by match strategy.",
	}, []string{"strategy"})

	importedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "transfer",
		Name:      "imported_rows_total",
		Help:      "Subrecord rows written by imports broken down by document key.",
	}, []string{"key"})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func recordExport(entity string, err error) {
	exportsTotal.With(prometheus.Labels{"entity": entity, "result": resultLabel(err)}).Inc()
}

func recordImport(entity string, res *ImportResult, err error) {
	importsTotal.With(prometheus.Labels{"entity": entity, "result": resultLabel(err)}).Inc()
	if err != nil || res == nil {
		return
	}
	patientMatches.With(prometheus.Labels{"strategy": string(res.Match)}).Inc()
	for key, n := range res.Imported {
		importedRows.With(prometheus.Labels{"key": key}).Add(float64(n))
	}
}
