package pipeline

import "sync"

// Phase 翻译流程阶段
type Phase string

const (
	PhaseResolved    Phase = "resolved"
	PhaseParsed      Phase = "parsed"
	PhaseTranslating Phase = "translating"
	PhaseComposing   Phase = "composing"
	PhasePersisted   Phase = "persisted"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether no further transition follows p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Status 运行状态
type Status struct {
	Phase            Phase  `json:"phase"`
	Progress         int    `json:"progress"`
	Message          string `json:"message"`
	TotalRegions     int    `json:"total_regions"`
	CompletedRegions int    `json:"completed_regions"`
	Error            string `json:"error,omitempty"`
}

// StatusFunc receives status updates. Calls are serialized.
type StatusFunc func(Status)

// reporter serializes status callbacks for one run.
type reporter struct {
	mu     sync.Mutex
	fn     StatusFunc
	status Status
}

func (r *reporter) set(phase Phase, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Phase = phase
	r.status.Progress = progress
	r.status.Message = message
	r.emit()
}

func (r *reporter) total(n int) {
	r.mu.Lock()
	r.status.TotalRegions = n
	r.mu.Unlock()
}

// regionDone advances the translating progress from 10 to 80.
func (r *reporter) regionDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.CompletedRegions++
	if r.status.TotalRegions > 0 {
		r.status.Progress = 10 + 70*r.status.CompletedRegions/r.status.TotalRegions
	}
	r.emit()
}

func (r *reporter) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Phase = PhaseFailed
	r.status.Message = "translation failed"
	r.status.Error = err.Error()
	r.emit()
}

func (r *reporter) emit() {
	if r.fn != nil {
		r.fn(r.status)
	}
}
