// Package metrics records the counters and gauges of one registration run
// in a private Prometheus registry. Batch runs export them to a node
// exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "registrar"

// Recorder owns the registry of one run. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	sections       prometheus.Gauge
	students       *prometheus.GaugeVec
	diagnostics    *prometheus.CounterVec
	modelSize      *prometheus.GaugeVec
	components     prometheus.Gauge
	nodes          prometheus.Counter
	phaseDuration  *prometheus.GaugeVec
	objective      prometheus.Gauge
	bound          prometheus.Gauge
	assignments    prometheus.Gauge
	emptySeats     prometheus.Gauge
	averageChoice  prometheus.Gauge
	validationFail prometheus.Counter
}

// New creates a Recorder. Every series carries the run id as a const label.
func New(runID string) *Recorder {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"run": runID}
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "sections",
			Help: "Sections in the catalog, lunch blocks included", ConstLabels: labels,
		}),
		students: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cohort", Name: "students",
			Help: "Students by state (loaded, scheduled, no_priorities)", ConstLabels: labels,
		}, []string{"state"}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cohort", Name: "diagnostics_total",
			Help: "Non-fatal input diagnostics by kind", ConstLabels: labels,
		}, []string{"kind"}),
		modelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "model", Name: "size",
			Help: "Model dimensions by kind (variables, constraints, fixed)", ConstLabels: labels,
		}, []string{"kind"}),
		components: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "solver", Name: "components",
			Help: "Independent model components after presolve", ConstLabels: labels,
		}),
		nodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "solver", Name: "nodes_total",
			Help: "Branch and bound nodes explored", ConstLabels: labels,
		}),
		phaseDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase_duration_seconds",
			Help: "Wall time spent per pipeline phase", ConstLabels: labels,
		}, []string{"phase"}),
		objective: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "solver", Name: "objective",
			Help: "Objective value of the returned assignment", ConstLabels: labels,
		}),
		bound: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "solver", Name: "bound",
			Help: "Proven upper bound on the objective", ConstLabels: labels,
		}),
		assignments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "result", Name: "assignments",
			Help: "Student section assignments, lunch blocks excluded", ConstLabels: labels,
		}),
		emptySeats: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "result", Name: "empty_seats",
			Help: "Seats left over in academic sections", ConstLabels: labels,
		}),
		averageChoice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "result", Name: "average_choice",
			Help: "Average choice number over assigned academic sections", ConstLabels: labels,
		}),
		validationFail: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "result", Name: "validation_failures_total",
			Help: "Post-solve checks that failed", ConstLabels: labels,
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Sections(n int) {
	if r == nil {
		return
	}
	r.sections.Set(float64(n))
}

func (r *Recorder) Students(state string, n int) {
	if r == nil {
		return
	}
	r.students.WithLabelValues(state).Set(float64(n))
}

func (r *Recorder) Diagnostic(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.diagnostics.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) ModelSize(kind string, n int) {
	if r == nil {
		return
	}
	r.modelSize.WithLabelValues(kind).Set(float64(n))
}

func (r *Recorder) Solve(components, nodes int, objective, bound float64) {
	if r == nil {
		return
	}
	r.components.Set(float64(components))
	r.nodes.Add(float64(nodes))
	r.objective.Set(objective)
	r.bound.Set(bound)
}

// Phase records how long a pipeline phase took, measured from start.
func (r *Recorder) Phase(name string, start time.Time) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(name).Set(time.Since(start).Seconds())
}

func (r *Recorder) Result(assignments, emptySeats int, averageChoice float64) {
	if r == nil {
		return
	}
	r.assignments.Set(float64(assignments))
	r.emptySeats.Set(float64(emptySeats))
	r.averageChoice.Set(averageChoice)
}

func (r *Recorder) ValidationFailures(n int) {
	if r == nil || n == 0 {
		return
	}
	r.validationFail.Add(float64(n))
}

// WriteTextfile writes all series in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
