package session

import (
	"sync"
	"time"
)

const metricsHistory = 100

// TurnMetrics tracks latency for one model turn. Latencies are measured
// from the turn's start: the last input transcript fragment heard before
// the model answered, or the first unit of the turn when there was none.
type TurnMetrics struct {
	Start       time.Time
	FirstOutput time.Time // first text or transcript from the model
	FirstAudio  time.Time
	Done        time.Time

	FirstOutputLatency time.Duration
	FirstAudioLatency  time.Duration
	TotalLatency       time.Duration

	AudioChunksIn  int // from the model
	AudioChunksOut int // microphone frames sent during the turn
	FunctionCalls  int
	Interrupted    bool
}

// TurnStats summarizes recent turns.
type TurnStats struct {
	Turns            int           `json:"turns"`
	AvgFirstAudio    time.Duration `json:"avg_first_audio"`
	AvgTotal         time.Duration `json:"avg_total"`
	FunctionCalls    int           `json:"function_calls"`
	InterruptedTurns int           `json:"interrupted_turns"`
}

// MetricsCollector collects turn metrics from the session duties. It is
// safe for concurrent use and outlives individual sessions.
type MetricsCollector struct {
	mu      sync.Mutex
	now     func() time.Time
	active  bool
	current TurnMetrics
	history []TurnMetrics
}

// NewMetricsCollector creates a collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		now:     time.Now,
		history: make([]TurnMetrics, 0, metricsHistory),
	}
}

// begin opens a turn if none is active. Must be called with mu held.
func (m *MetricsCollector) begin(at time.Time) {
	if !m.active {
		m.active = true
		m.current = TurnMetrics{Start: at}
	}
}

func (m *MetricsCollector) markInput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	m.begin(at)
	if m.current.FirstOutput.IsZero() && m.current.FirstAudio.IsZero() {
		m.current.Start = at
	}
}

func (m *MetricsCollector) markOutput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	m.begin(at)
	if m.current.FirstOutput.IsZero() {
		m.current.FirstOutput = at
		m.current.FirstOutputLatency = at.Sub(m.current.Start)
	}
}

func (m *MetricsCollector) markAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	m.begin(at)
	m.current.AudioChunksIn++
	if m.current.FirstAudio.IsZero() {
		m.current.FirstAudio = at
		m.current.FirstAudioLatency = at.Sub(m.current.Start)
	}
}

func (m *MetricsCollector) markAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.current.AudioChunksOut++
	}
}

func (m *MetricsCollector) markCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begin(m.now())
	m.current.FunctionCalls++
}

// markDone closes the active turn and archives it. It reports false when
// no turn was open.
func (m *MetricsCollector) markDone(interrupted bool) (TurnMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return TurnMetrics{}, false
	}
	at := m.now()
	m.current.Done = at
	m.current.TotalLatency = at.Sub(m.current.Start)
	m.current.Interrupted = interrupted
	m.active = false

	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	return m.current, true
}

// Current returns the turn in progress, if any.
func (m *MetricsCollector) Current() (TurnMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.active
}

// Stats averages the archived turns. Turns without audio are left out of
// the first-audio average.
func (m *MetricsCollector) Stats() TurnStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := TurnStats{Turns: len(m.history)}
	if st.Turns == 0 {
		return st
	}
	var audioTurns int
	var firstAudio, total time.Duration
	for _, t := range m.history {
		total += t.TotalLatency
		st.FunctionCalls += t.FunctionCalls
		if t.Interrupted {
			st.InterruptedTurns++
		}
		if !t.FirstAudio.IsZero() {
			firstAudio += t.FirstAudioLatency
			audioTurns++
		}
	}
	st.AvgTotal = total / time.Duration(st.Turns)
	if audioTurns > 0 {
		st.AvgFirstAudio = firstAudio / time.Duration(audioTurns)
	}
	return st
}

// Format renders the latencies of t in one line.
func (t TurnMetrics) Format() string {
	return formatDuration(t.FirstOutputLatency) + " first output | " +
		formatDuration(t.FirstAudioLatency) + " first audio | " +
		formatDuration(t.TotalLatency) + " total"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
