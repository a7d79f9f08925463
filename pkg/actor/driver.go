package actor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xorbits-io/xorbits/pkg/analyzer"
	xband "github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

func init() {
	RegisterMessageType(dispatchMsg{})
	RegisterMessageType(DispatchResult{})
}

// TaskDriverConfig tunes a TaskDriver. Tracing is off by default; enabling
// it wraps Analyze and every subtask dispatch in a span.
type TaskDriverConfig struct {
	Tracing TracingConfig
}

// TaskDriver ties the Graph Analyzer to a MainPool's dispatch path: it runs
// Analyze to turn a chunk graph into a subtask DAG, then walks that DAG in
// topological order, sending each subtask to whichever subpool its assigned
// band resolves to. There is no separate task-manager process in this
// codebase (the main pool and the analyzer cover that ground directly);
// TaskDriver is the seam between them a real caller uses instead of
// invoking Analyze and Send by hand.
type TaskDriver struct {
	pool           *MainPool
	analyzerConfig analyzer.Config
	tracer         trace.Tracer
}

// NewTaskDriver builds a TaskDriver around an already-running MainPool.
// The returned shutdown func flushes and releases whatever tracing
// resources cfg.Tracing allocated; callers should defer it.
func NewTaskDriver(pool *MainPool, analyzerConfig analyzer.Config, cfg TaskDriverConfig) (*TaskDriver, shutdownFunc, error) {
	tracer, shutdown, err := NewTracer(cfg.Tracing)
	if err != nil {
		return nil, nil, fmt.Errorf("actor: new task driver: %w", err)
	}
	return &TaskDriver{pool: pool, analyzerConfig: analyzerConfig, tracer: tracer}, shutdown, nil
}

// dispatchMsg is what a TaskDriver sends a subpool to announce one
// subtask's dispatch. A subpool is now a separate OS process reached over
// a gob-encoded Transport, so only the fields a remote worker needs to
// acknowledge receipt cross the wire; ChunkGraph is never round-tripped,
// the same rule subtask.Graph's own JSON snapshot already follows (it
// carries unexported adjacency-map state gob cannot see). The actor
// hosting subtask execution is out of this package's scope (no real
// tensor/dataframe engine backs it here); DispatchResult just
// acknowledges receipt so RunTask can confirm every subtask reached its
// assigned band.
type dispatchMsg struct {
	SubtaskID string
	StageID   string
	SessionID string
	TaskID    string
	LogicKey  string
	Priority  subtask.Priority
}

// DispatchResult is returned by an Actor's Receive in response to a
// dispatchMsg.
type DispatchResult struct {
	SubtaskID string
	Err       error
}

// RunTask analyzes g into a subtask graph and dispatches every subtask, in
// topological (dependency-respecting) order, to the subpool its assigned
// band names. It returns the analyzed graph once every subtask has been
// sent; it does not wait for subtask completion beyond the synchronous
// Receive round trip MainPool.Send already performs.
func (d *TaskDriver) RunTask(ctx context.Context, g *chunk.Graph, resources xband.ResourceMap, sessionID, taskID, stageID string) (*subtask.Graph, error) {
	ctx, span := startSpan(ctx, d.tracer, "analyzer.Analyze",
		attribute.String("session_id", sessionID),
		attribute.String("task_id", taskID),
		attribute.String("stage_id", stageID),
	)
	result, err := analyzer.Analyze(ctx, g, resources, d.analyzerConfig, sessionID, taskID, stageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("subtask_count", result.SubtaskGraph.Len()))
	span.End()

	order, err := result.SubtaskGraph.TopologicalIter()
	if err != nil {
		return nil, fmt.Errorf("actor: run task: %w", err)
	}

	for _, st := range order {
		if err := d.dispatchSubtask(ctx, st); err != nil {
			return nil, fmt.Errorf("actor: dispatch subtask %s: %w", st.ID, err)
		}
	}
	return result.SubtaskGraph, nil
}

// dispatchSubtask sends one subtask to the subpool hosting its first
// assigned band. A subtask with no band assignment (BandsSpecified false
// and ExpectBands empty) is a driver bug upstream of this call — Analyze
// never emits one — so that case is reported as an error rather than
// silently skipped.
func (d *TaskDriver) dispatchSubtask(ctx context.Context, st *subtask.Subtask) error {
	if len(st.ExpectBands) == 0 {
		return fmt.Errorf("actor: subtask %s has no assigned band", st.ID)
	}
	address := st.ExpectBands[0].Worker.String()

	ctx, span := startSpan(ctx, d.tracer, "actor.dispatch_subtask",
		attribute.String("subtask_id", st.ID),
		attribute.String("band", address),
		attribute.Int("priority_depth", st.Priority.Depth),
	)
	defer span.End()

	msg := dispatchMsg{
		SubtaskID: st.ID,
		StageID:   st.StageID,
		SessionID: st.SessionID,
		TaskID:    st.TaskID,
		LogicKey:  st.LogicKey,
		Priority:  st.Priority,
	}
	reply, err := d.pool.Send(ctx, address, ActorID(st.ID), msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if dr, ok := reply.(DispatchResult); ok && dr.Err != nil {
		span.RecordError(dr.Err)
		span.SetStatus(codes.Error, dr.Err.Error())
		return dr.Err
	}
	return nil
}
