package memory

import "sync"

// ProcessedPayments is the process-local set of payment references that were
// already confirmed and acted on. It is not shared across instances.
type ProcessedPayments struct {
	mu   sync.Mutex
	refs map[string]struct{}
}

func NewProcessedPayments() *ProcessedPayments {
	return &ProcessedPayments{refs: make(map[string]struct{})}
}

func (p *ProcessedPayments) IsProcessed(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.refs[ref]
	return ok
}

// MarkProcessed records ref. Marking twice is a no-op.
func (p *ProcessedPayments) MarkProcessed(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[ref] = struct{}{}
}

// TryMark records ref and returns true only for the first caller.
func (p *ProcessedPayments) TryMark(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.refs[ref]; ok {
		return false
	}
	p.refs[ref] = struct{}{}
	return true
}
