/*
Package flowgraph provides graph-based orchestration for stateful,
conversational workflows.

# Overview

flowgraph builds and executes directed graphs where nodes perform work and
edges define flow. Every run belongs to a thread. After each step the
thread's state is committed to a checkpoint store, so a thread can be
continued in a later turn, inspected, or resumed after a human decision.

The engine provides:
  - Type-safe generics for state (S) and partial updates (U)
  - Compile-time validation of graph structure, including fan-outs
  - Deterministic merging of concurrent branches
  - Interrupts that park a thread until a reviewer decides
  - OpenTelemetry and Prometheus instrumentation

# Basic Usage

Nodes return partial updates; a Reducer folds them into the state:

	type State struct {
	    Input  string
	    Output string
	}

	type Update struct {
	    Output string
	}

	func reduce(s State, u Update) State {
	    s.Output = u.Output
	    return s
	}

	func process(ctx flowgraph.Context, s State) (Update, error) {
	    return Update{Output: "Processed: " + s.Input}, nil
	}

	compiled, err := flowgraph.NewGraph(reduce).
	    AddNode("process", process).
	    AddEdge("process", flowgraph.END).
	    SetEntry("process").
	    Compile()
	if err != nil {
	    log.Fatal(err)
	}

	result, err := compiled.Run(context.Background(), "", State{Input: "hello"})
	fmt.Println(result.State.Output) // "Processed: hello"

# Conditional Branching

Use conditional edges for decision points:

	graph.AddConditionalEdge("review", func(ctx flowgraph.Context, s State) string {
	    if s.Approved {
	        return "publish"
	    }
	    return "revise"
	})

# Fan-out

Adding several edges from one node runs the targets concurrently:

	graph.AddEdge("retrieve", "assess").
	    AddEdge("retrieve", "deadlines").
	    AddEdge("deadlines", "respond").
	    AddConditionalEdge("assess", routeAfterAssess)

Each branch sees the state as it was at the fork. The engine waits for all
branches, merges their updates in edge declaration order, then evaluates
the single router (if any) on the merged state. Compile rejects fan-outs
it cannot merge this way with ErrInvalidFanOut.

# Threads and Checkpoints

Start runs a new turn on a persisted thread:

	store := checkpoint.NewMemoryStore()
	result, err := compiled.Start(ctx, store, "thread-1",
	    func(prev State, found bool) (State, error) {
	        prev.Input = "next question"
	        return prev, nil
	    })

Checkpoints are written after every merged step. The memory, SQLite and
Redis stores in the checkpoint package share the same contract.

# Interrupts

A node registered with SetInterruptNode may return Interrupt to park the
thread. Resume continues it with a reviewer decision:

	func review(ctx flowgraph.Context, s State) (Update, error) {
	    d := ctx.Decision()
	    if d == nil {
	        return Update{}, flowgraph.Interrupt("approve?")
	    }
	    return Update{Approved: d.Approved()}, nil
	}

	result, err = compiled.Resume(ctx, store, "thread-1",
	    interrupt.NewDecision(interrupt.Approved, "alice"))

# Error Handling

Node errors are wrapped in NodeError, panics in PanicError, routing
failures in RouterError and fan-out failures in ForkJoinError. Checkpoint
failures abort the run with CheckpointError. Use errors.Is with the
sentinel errors (ErrThreadNotFound, ErrNotAwaitingDecision,
ErrAwaitingDecision) to map them to caller-facing responses.

# Observability

	result, err := compiled.Start(ctx, store, id, prepare,
	    flowgraph.WithObservabilityLogger(logger),
	    flowgraph.WithMetricsRecorder(observability.NewMetricsRecorder()),
	    flowgraph.WithTracing(true),
	    flowgraph.WithObserver(func(e flowgraph.Event[State]) { ... }))
*/
package flowgraph
