package policy

import (
	"context"
	"fmt"
	"time"
)

// SlotPolicy controls slot discovery: candidates are offered every Step, and
// each booking must leave Buffer free after it for turnaround.
type SlotPolicy struct {
	Step   time.Duration
	Buffer time.Duration
}

var DefaultSlotPolicy = SlotPolicy{Step: 15 * time.Minute, Buffer: 5 * time.Minute}

type Provider interface {
	SlotPolicy(ctx context.Context, tenantID string) (SlotPolicy, error)
}

type staticProvider struct {
	policy SlotPolicy
}

func NewStaticProvider(p SlotPolicy) (Provider, error) {
	if p.Step <= 0 {
		return nil, fmt.Errorf("slot step must be positive (got %s)", p.Step)
	}
	if p.Buffer < 0 {
		return nil, fmt.Errorf("slot buffer must not be negative (got %s)", p.Buffer)
	}
	return &staticProvider{policy: p}, nil
}

func (p *staticProvider) SlotPolicy(_ context.Context, _ string) (SlotPolicy, error) {
	return p.policy, nil
}
