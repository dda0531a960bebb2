package agent_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/auditflow/internal/agent"
	"github.com/randalmurphal/auditflow/internal/agent/agenttest"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/interrupt"
)

func benchGraph(b *testing.B, f *agenttest.Fakes) *flowgraph.CompiledGraph[agent.State, agent.Update] {
	b.Helper()
	steps, err := agent.NewSteps(f.Tools(), agent.DefaultSettings())
	if err != nil {
		b.Fatal(err)
	}
	graph, err := agent.Compile(steps)
	if err != nil {
		b.Fatal(err)
	}
	return graph
}

// BenchmarkTurn_Simple runs the fast path against the memory store.
func BenchmarkTurn_Simple(b *testing.B) {
	graph := benchGraph(b, agenttest.New())
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("t-%d", i)
		if _, err := graph.Start(ctx, store, id, agent.NewTurn(id, "What is finding HK-001?", false)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTurn_ComplexApproved runs the fan-out, suspends, and resumes.
func BenchmarkTurn_ComplexApproved(b *testing.B) {
	f := agenttest.New()
	f.Classifier.Type = "complex"
	f.Evaluator.Report = agenttest.GapReport
	graph := benchGraph(b, f)
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("t-%d", i)
		if _, err := graph.Start(ctx, store, id, agent.NewTurn(id, "Review all findings", false)); err != nil {
			b.Fatal(err)
		}
		if _, err := graph.Resume(ctx, store, id, interrupt.NewDecision(interrupt.Approved, "Auditor")); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTurn_SQLite measures a follow-up turn on one thread with
// durable checkpoints.
func BenchmarkTurn_SQLite(b *testing.B) {
	graph := benchGraph(b, agenttest.New())
	store, err := checkpoint.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := graph.Start(ctx, store, "bench", agent.NewTurn("bench", "What is finding HK-001?", false)); err != nil {
			b.Fatal(err)
		}
	}
}
