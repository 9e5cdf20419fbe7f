package pipeline

// ThresholdMonitor tracks terminal failures against the configured failure
// budget for one batch cycle. Not safe for concurrent use; the committer
// serializes access under its own lock.
type ThresholdMonitor struct {
	batchSize          int
	maxErrorPercentage float64
	failed             int
}

func NewThresholdMonitor(batchSize int, maxErrorPercentage float64) *ThresholdMonitor {
	return &ThresholdMonitor{batchSize: batchSize, maxErrorPercentage: maxErrorPercentage}
}

func (m *ThresholdMonitor) Record(failed bool) {
	if failed {
		m.failed++
	}
}

func (m *ThresholdMonitor) Failed() int { return m.failed }

// TrippedEarly reports whether the failures observed so far already breach
// the threshold for the full batch size, regardless of how the remaining
// items turn out.
func (m *ThresholdMonitor) TrippedEarly() bool {
	if m.batchSize <= 0 {
		return false
	}
	return float64(m.failed)*100 > float64(m.batchSize)*m.maxErrorPercentage
}

// ExceededAt reports whether the failure ratio over total items breaches the
// threshold. Used at batch close, where total may be below the configured
// batch size on a flush-timeout close.
func (m *ThresholdMonitor) ExceededAt(total int) bool {
	if total <= 0 {
		return false
	}
	return float64(m.failed)/float64(total)*100 > m.maxErrorPercentage
}

func (m *ThresholdMonitor) Reset() { m.failed = 0 }
