package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelReplans captures replan records only.
	TraceLevelReplans TraceLevel = "replans"
	// TraceLevelTriggers additionally captures every trigger observation.
	TraceLevelTriggers TraceLevel = "triggers"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelReplans:  true,
	TraceLevelTriggers: true,
	"":                 true, // empty defaults to replans
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a session.
type SimulationTrace struct {
	Config   TraceConfig
	Triggers []TriggerRecord
	Replans  []ReplanRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:   config,
		Triggers: make([]TriggerRecord, 0),
		Replans:  make([]ReplanRecord, 0),
	}
}

// RecordTrigger appends a trigger record when the level includes triggers.
func (st *SimulationTrace) RecordTrigger(record TriggerRecord) {
	if st.Config.Level != TraceLevelTriggers {
		return
	}
	st.Triggers = append(st.Triggers, record)
}

// RecordReplan appends a replan record.
func (st *SimulationTrace) RecordReplan(record ReplanRecord) {
	st.Replans = append(st.Replans, record)
}

// ReplansSince returns the records appended after the first n.
func (st *SimulationTrace) ReplansSince(n int) []ReplanRecord {
	if n >= len(st.Replans) {
		return nil
	}
	out := make([]ReplanRecord, len(st.Replans)-n)
	copy(out, st.Replans[n:])
	return out
}
