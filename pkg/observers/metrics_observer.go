package observers

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anggasct/inspectflow"
)

// MetricsObserver collects metrics about workflow execution. Counters are
// kept in memory for the getters and, when a registerer is given, exported
// as Prometheus metrics.
type MetricsObserver struct {
	inspectflow.BaseObserver

	statusEntries    map[inspectflow.Status]int
	stageTimeSpent   map[inspectflow.Status]time.Duration
	actionCounts     map[inspectflow.Action]int
	transitionCounts map[string]int
	rejectedCommands map[inspectflow.ErrorCode]int
	conflictCount    int
	errorCount       int
	mutex            sync.RWMutex

	prom *promMetrics
}

type promMetrics struct {
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	conflicts   prometheus.Counter
	errors      prometheus.Counter
	created     prometheus.Counter
	stageDwell  *prometheus.HistogramVec
}

func newPromMetrics(reg prometheus.Registerer) (*promMetrics, error) {
	m := &promMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectflow_transitions_total",
				Help: "Committed workflow commands by action and status change",
			},
			[]string{"action", "role", "from", "to"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectflow_commands_rejected_total",
				Help: "Commands refused by a business rule, by error code",
			},
			[]string{"action", "code"},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inspectflow_optimistic_conflicts_total",
				Help: "Optimistic writes that lost and were retried",
			},
		),
		errors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inspectflow_errors_total",
				Help: "Storage failures and observer panics",
			},
		),
		created: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inspectflow_submissions_created_total",
				Help: "Inspection reports created",
			},
		),
		stageDwell: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectflow_stage_dwell_seconds",
				Help:    "Time a submission spent in a status before leaving it",
				Buckets: prometheus.ExponentialBuckets(60, 4, 8),
			},
			[]string{"status"},
		),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.rejected, m.conflicts, m.errors, m.created, m.stageDwell} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMetricsObserver creates a new metrics observer. A nil registerer keeps
// metrics in memory only.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{}
	o.reset()
	if reg != nil {
		prom, err := newPromMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.prom = prom
	}
	return o, nil
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(ctx context.Context, change inspectflow.Change) {
	out := change.Outcome
	dwell, hasDwell := stageDwell(change)

	o.mutex.Lock()
	o.actionCounts[out.Action]++
	o.transitionCounts[string(out.From)+"->"+string(out.To)]++
	if out.StateChanged() {
		o.statusEntries[out.To]++
		if hasDwell {
			o.stageTimeSpent[out.From] += dwell
		}
	}
	o.mutex.Unlock()

	if o.prom != nil {
		o.prom.transitions.WithLabelValues(string(out.Action), string(out.Role), string(out.From), string(out.To)).Inc()
		if out.StateChanged() && hasDwell {
			o.prom.stageDwell.WithLabelValues(string(out.From)).Observe(dwell.Seconds())
		}
	}
}

// stageDwell is the time between the audit entry that moved the submission
// into the status it just left and the entry that moved it out.
func stageDwell(change inspectflow.Change) (time.Duration, bool) {
	audit := change.Submission.Audit
	if len(audit) == 0 || !change.Outcome.StateChanged() {
		return 0, false
	}
	last := audit[len(audit)-1]
	for i := len(audit) - 2; i >= 0; i-- {
		e := audit[i]
		if e.To == change.Outcome.From && (e.From != e.To || e.Action == inspectflow.ActionCreate) {
			return last.At.Sub(e.At), true
		}
	}
	return 0, false
}

// OnCreated counts new submissions
func (o *MetricsObserver) OnCreated(ctx context.Context, sub *inspectflow.Submission) {
	o.mutex.Lock()
	o.statusEntries[inspectflow.StatusSubmitted]++
	o.mutex.Unlock()
	if o.prom != nil {
		o.prom.created.Inc()
	}
}

// OnCommandRejected counts business rule failures by code
func (o *MetricsObserver) OnCommandRejected(ctx context.Context, submissionID string, cmd inspectflow.Command, err error) {
	code := inspectflow.GetErrorCode(err)
	o.mutex.Lock()
	o.rejectedCommands[code]++
	o.mutex.Unlock()
	if o.prom != nil {
		o.prom.rejected.WithLabelValues(string(cmd.Action), code.String()).Inc()
	}
}

// OnConflict counts lost optimistic writes
func (o *MetricsObserver) OnConflict(ctx context.Context, submissionID string, attempt int) {
	o.mutex.Lock()
	o.conflictCount++
	o.mutex.Unlock()
	if o.prom != nil {
		o.prom.conflicts.Inc()
	}
}

// OnError records error metrics
func (o *MetricsObserver) OnError(ctx context.Context, err error) {
	o.mutex.Lock()
	o.errorCount++
	o.mutex.Unlock()
	if o.prom != nil {
		o.prom.errors.Inc()
	}
}

// GetStatusEntryCounts returns how many times each status was entered
func (o *MetricsObserver) GetStatusEntryCounts() map[inspectflow.Status]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[inspectflow.Status]int)
	for status, count := range o.statusEntries {
		result[status] = count
	}
	return result
}

// GetStageTimeSpent returns the accumulated time spent in each status
func (o *MetricsObserver) GetStageTimeSpent() map[inspectflow.Status]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[inspectflow.Status]time.Duration)
	for status, duration := range o.stageTimeSpent {
		result[status] = duration
	}
	return result
}

// GetActionCounts returns the number of committed commands per action
func (o *MetricsObserver) GetActionCounts() map[inspectflow.Action]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[inspectflow.Action]int)
	for action, count := range o.actionCounts {
		result[action] = count
	}
	return result
}

// GetTransitionCounts returns the number of times each transition occurred
func (o *MetricsObserver) GetTransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[string]int)
	for transition, count := range o.transitionCounts {
		result[transition] = count
	}
	return result
}

// GetRejectedCommandCounts returns refused commands per error code
func (o *MetricsObserver) GetRejectedCommandCounts() map[inspectflow.ErrorCode]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[inspectflow.ErrorCode]int)
	for code, count := range o.rejectedCommands {
		result[code] = count
	}
	return result
}

// GetConflictCount returns the number of lost optimistic writes
func (o *MetricsObserver) GetConflictCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.conflictCount
}

// GetErrorCount returns the number of errors
func (o *MetricsObserver) GetErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.errorCount
}

// Reset resets the in-memory metrics. Exported Prometheus counters are left alone.
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.reset()
}

func (o *MetricsObserver) reset() {
	o.statusEntries = make(map[inspectflow.Status]int)
	o.stageTimeSpent = make(map[inspectflow.Status]time.Duration)
	o.actionCounts = make(map[inspectflow.Action]int)
	o.transitionCounts = make(map[string]int)
	o.rejectedCommands = make(map[inspectflow.ErrorCode]int)
	o.conflictCount = 0
	o.errorCount = 0
}
