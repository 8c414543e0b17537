// Package monitor tracks signed destination-chain transactions until they
// reach a terminal state.
package monitor

import (
	"context"

	"sigresponder/types"
)

// Checker polls one destination chain family.
type Checker interface {
	Check(ctx context.Context, p *types.PendingTransaction) types.MonitorResult
}

// Monitor routes a pending transaction to the checker of its namespace.
type Monitor struct {
	checkers map[types.ChainNamespace]Checker
}

func New() *Monitor {
	return &Monitor{checkers: make(map[types.ChainNamespace]Checker)}
}

// Register installs c for ns, replacing any previous checker.
func (m *Monitor) Register(ns types.ChainNamespace, c Checker) *Monitor {
	m.checkers[ns] = c
	return m
}

func (m *Monitor) Check(ctx context.Context, p *types.PendingTransaction) types.MonitorResult {
	c, ok := m.checkers[p.Namespace]
	if !ok {
		return types.Fatal(types.ReasonUnsupportedChain)
	}
	return c.Check(ctx, p)
}
