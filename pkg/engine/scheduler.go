package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/owliabot/ais-sub001/internal/application/observer"
	"github.com/owliabot/ais-sub001/pkg/aiserr"
	"github.com/owliabot/ais-sub001/pkg/command"
	"github.com/owliabot/ais-sub001/pkg/eventlog"
	"github.com/owliabot/ais-sub001/pkg/executor"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/readiness"
	"github.com/owliabot/ais-sub001/pkg/solver"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// Deps are the Engine's collaborators.
type Deps struct {
	Plan       *plan.Plan
	Root       *value.Root
	Protocols  plan.ProtocolResolver
	Executors  *executor.Registry
	Limits     Limits
	Observers  *observer.ObserverManager
	Checkpoint eventlog.Store
	RunID      string
	Broadcast  bool
	Detect     value.DetectResolver
	SolverOpts solver.Options
	Commands   *command.Reader
	Guard      value.GuardOptions
}

// Engine runs one plan to completion, pause, or cancellation.
type Engine struct {
	deps  Deps
	state *runState
	sem   *semaphores
	seq   int64
	seqMu sync.Mutex

	approvedMu sync.Mutex
	approved   map[string]bool
}

// New builds an Engine ready to Run.
func New(deps Deps) *Engine {
	if deps.Limits == (Limits{}) {
		deps.Limits = DefaultLimits()
	}
	return &Engine{
		deps:     deps,
		state:    newRunState(),
		sem:      newSemaphores(deps.Limits),
		approved: make(map[string]bool),
	}
}

// Outcome is the terminal result of one Run call.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "engine_paused"
	OutcomeError     Outcome = "error"
)

// Resume seeds the engine's runState from a loaded checkpoint so
// completed nodes are skipped and poll/pause state restored.
func (e *Engine) Resume(cp *eventlog.Checkpoint) {
	for _, id := range cp.CompletedNodeIDs {
		e.state.setStatus(id, StatusCompleted)
	}
	for id, ps := range cp.PollStateByNodeID {
		e.state.setPoll(id, ps)
	}
	for id, ps := range cp.PausedByNodeID {
		e.state.setStatus(id, StatusPaused)
		e.state.setPause(id, ps)
	}
}

// Run drives the scheduler loop to completion, pause, or error.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	e.emit(observer.EventPlanReady, "", nil)

	if e.deps.Commands != nil {
		e.drainCommands(ctx)
	}

	for {
		if cancelled, reason := e.state.isCancelled(); cancelled {
			e.saveCheckpoint()
			e.emit(observer.EventEnginePaused, "", map[string]interface{}{"reason": "cancelled", "cancel_reason": reason})
			return OutcomePaused, nil
		}

		ready, blockedPauses, anyPending := e.nextReady()
		if len(ready) == 0 {
			if anyPending {
				// nothing ready yet but nothing pauses either: all
				// remaining pending nodes are waiting on retries.
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if len(blockedPauses) > 0 || len(e.state.pauseStates()) > 0 {
				e.saveCheckpoint()
				e.emit(observer.EventEnginePaused, "", map[string]interface{}{"reasons": blockedPauses})
				return OutcomePaused, nil
			}
			break
		}

		var wg sync.WaitGroup
		errCh := make(chan error, len(ready))
		for _, n := range ready {
			n := n
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := e.runNode(ctx, n); err != nil {
					errCh <- err
				}
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			e.saveCheckpoint()
			e.emit(observer.EventError, "", map[string]interface{}{"error": err.Error()})
			return OutcomeError, err
		}
		e.saveCheckpoint()

		if e.deps.Commands != nil {
			e.drainCommands(ctx)
		}
	}

	e.saveCheckpoint()
	return OutcomeCompleted, nil
}

// nextReady computes the ready set for this pass: pending nodes whose
// deps are all completed/skipped and whose readiness is ready. Blocked
// nodes get one solver invocation; unresolved ones contribute a pause
// reason. Returns whether any node is still pending a retry wait.
func (e *Engine) nextReady() (ready []*plan.Node, pauseReasons []map[string]interface{}, anyPendingRetry bool) {
	completed := make(map[string]bool)
	for _, id := range e.state.completedIDs() {
		completed[id] = true
	}

	for _, n := range e.deps.Plan.Nodes {
		st := e.state.getStatus(n.ID)
		if st != StatusPending && st != StatusRetrying {
			continue
		}
		if st == StatusRetrying {
			poll := e.state.getPoll(n.ID)
			if poll.NextAttemptAtMs != nil && nowMs() < *poll.NextAttemptAtMs {
				anyPendingRetry = true
				continue
			}
		}
		depsReady := true
		for _, dep := range n.Deps {
			if !completed[dep] {
				depsReady = false
				break
			}
		}
		if !depsReady {
			continue
		}

		outcome := readiness.Check(e.deps.Root, n, value.Options{Detect: e.deps.Detect})
		switch outcome.State {
		case readiness.Ready:
			ready = append(ready, n)
		case readiness.Skipped:
			e.state.setStatus(n.ID, StatusSkipped)
			e.emit(observer.EventSkipped, n.ID, nil)
		case readiness.Blocked:
			res := solver.Solve(n, outcome, e.deps.Protocols, e.deps.SolverOpts)
			for _, p := range res.Patches {
				if err := e.deps.Root.ApplyUnguarded(p); err != nil {
					continue
				}
				e.emit(observer.EventSolverApplied, n.ID, map[string]interface{}{"patch": p})
			}
			if len(res.Patches) > 0 && !res.NeedUserConfirm {
				// re-check immediately against the patched root
				recheck := readiness.Check(e.deps.Root, n, value.Options{Detect: e.deps.Detect})
				if recheck.State == readiness.Ready {
					ready = append(ready, n)
					continue
				}
			}
			e.emit(observer.EventNodeBlocked, n.ID, map[string]interface{}{"missing_refs": outcome.MissingRefs})
			if res.NeedUserConfirm {
				pauseReasons = append(pauseReasons, map[string]interface{}{"node_id": n.ID, "reason": res.Reason, "details": res.Details})
				e.state.setStatus(n.ID, StatusPaused)
				e.state.setPause(n.ID, eventlog.PauseState{Reason: res.Reason, Details: res.Details, PausedAtMs: nowMs()})
				e.emit(observer.EventNodePaused, n.ID, map[string]interface{}{"reason": res.Reason})
			}
		}
	}
	return ready, pauseReasons, anyPendingRetry
}

// runNode dispatches one ready node through the executor chain,
// reserving concurrency slots, evaluating assert/until, and scheduling
// retries.
func (e *Engine) runNode(ctx context.Context, n *plan.Node) error {
	e.state.setStatus(n.ID, StatusRunning)
	e.emit(observer.EventNodeReady, n.ID, nil)

	release := e.sem.acquire(n.Chain, n.IsReadKind())
	defer release()

	exec, ok := e.deps.Executors.Resolve(n)
	if !ok {
		return &aiserr.ExecutorError{NodeID: n.ID, Err: errNoExecutor{kind: string(n.Kind)}}
	}

	resolvedParams := make(map[string]interface{}, len(n.Bindings.Params))
	for k, ref := range n.Bindings.Params {
		v, err := value.Resolve(e.deps.Root, ref, value.Options{Detect: e.deps.Detect})
		if err != nil {
			return err
		}
		resolvedParams[k] = v
	}

	ectx := &executor.ExecCtx{
		RunID:          e.deps.RunID,
		Root:           e.deps.Root,
		ResolvedParams: resolvedParams,
		Detect:         e.deps.Detect,
		Broadcast:      e.deps.Broadcast,
		Approved:       e.snapshotApproved(),
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if n.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(n.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	if !n.IsReadKind() {
		e.emit(observer.EventTxPrepared, n.ID, map[string]interface{}{"chain": n.Chain})
	}

	res, err := exec.Execute(runCtx, n, ectx)
	if err != nil {
		if aiserr.Retryable(err) && n.RetryPolicy != nil {
			return e.scheduleRetry(n, err)
		}
		e.state.setStatus(n.ID, StatusFailed)
		e.emit(observer.EventError, n.ID, map[string]interface{}{"error": err.Error()})
		return err
	}

	if res.Confirm != nil {
		e.state.setStatus(n.ID, StatusPaused)
		e.state.setPause(n.ID, eventlog.PauseState{Reason: res.Confirm.Reason, Details: res.Confirm.Details, PausedAtMs: nowMs()})
		e.emit(observer.EventNeedUserConfirm, n.ID, map[string]interface{}{"reason": res.Confirm.Reason, "details": res.Confirm.Details})
		return nil
	}

	for _, w := range n.Writes {
		op := "set"
		if w.Mode == plan.WriteMerge {
			op = "merge"
		}
		e.deps.Root.ApplyUnguarded(value.Patch{Op: op, Path: w.Path, Value: res.Outputs})
	}
	if len(n.Writes) == 0 {
		e.deps.Root.ApplyUnguarded(value.Patch{Op: "merge", Path: "nodes." + n.ID + ".outputs", Value: res.Outputs})
	}
	for _, p := range res.Patches {
		e.deps.Root.ApplyUnguarded(p)
	}

	if n.IsReadKind() {
		e.emit(observer.EventQueryResult, n.ID, map[string]interface{}{"outputs": res.Outputs})
	} else {
		e.emit(observer.EventTxSent, n.ID, map[string]interface{}{"outputs": res.Outputs})
		e.emit(observer.EventTxConfirmed, n.ID, map[string]interface{}{"outputs": res.Outputs})
	}

	if n.Assert != nil {
		assertVal, err := value.Resolve(e.deps.Root, n.Assert, value.Options{Detect: e.deps.Detect})
		passed, _ := assertVal.(bool)
		if err != nil || !passed {
			e.state.setStatus(n.ID, StatusFailed)
			e.emit(observer.EventError, n.ID, map[string]interface{}{"error": n.AssertMessage})
			return &assertFailedError{NodeID: n.ID, Message: n.AssertMessage}
		}
	}

	if n.Until != nil {
		done, err := value.Resolve(e.deps.Root, n.Until, value.Options{Detect: e.deps.Detect})
		if err == nil {
			if b, ok := done.(bool); ok && !b {
				return e.scheduleRetry(n, nil)
			}
		}
	}

	e.state.setStatus(n.ID, StatusCompleted)
	return nil
}

// scheduleRetry advances the node's poll state per its retry policy
// and marks it retrying (if attempts remain) or failed (exhausted).
func (e *Engine) scheduleRetry(n *plan.Node, cause error) error {
	poll := e.state.getPoll(n.ID)
	poll.Attempts++
	if poll.StartedAtMs == 0 {
		poll.StartedAtMs = nowMs()
	}
	rp := n.RetryPolicy
	if rp != nil && rp.MaxAttempts > 0 && poll.Attempts >= rp.MaxAttempts {
		e.state.setStatus(n.ID, StatusFailed)
		e.emit(observer.EventError, n.ID, map[string]interface{}{"error": "retry attempts exhausted"})
		if cause != nil {
			return cause
		}
		return &assertFailedError{NodeID: n.ID, Message: "until condition never satisfied"}
	}
	delay := retryDelay(rp, poll.Attempts)
	next := nowMs() + delay
	poll.NextAttemptAtMs = &next
	e.state.setPoll(n.ID, poll)
	e.state.setStatus(n.ID, StatusRetrying)
	e.emit(observer.EventNodeWaiting, n.ID, map[string]interface{}{"attempts": poll.Attempts, "next_attempt_at_ms": next})
	return nil
}

// retryDelay computes the wall-clock gap (ms) until the next poll
// attempt. Fixed intervals are a plain offset from now; exponential
// backoff doubles it per attempt.
func retryDelay(rp *plan.Retry, attempt int) int64 {
	if rp == nil || rp.IntervalMs <= 0 {
		return 1000
	}
	if rp.Backoff == "exponential" {
		d := int64(rp.IntervalMs)
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
	return int64(rp.IntervalMs)
}

func (e *Engine) snapshotApproved() map[string]bool {
	e.approvedMu.Lock()
	defer e.approvedMu.Unlock()
	out := make(map[string]bool, len(e.approved))
	for k, v := range e.approved {
		out[k] = v
	}
	return out
}

// Approve records an approval from a user_confirm command, unblocking
// future policy gate checks for the same node+action.
func (e *Engine) Approve(nodeID, actionKey string) {
	e.approvedMu.Lock()
	defer e.approvedMu.Unlock()
	e.approved[nodeID+":"+actionKey] = true
	e.state.clearPause(nodeID)
	e.state.setStatus(nodeID, StatusPending)
}

// Cancel marks the run cancelled; in-flight nodes finish, no new work
// is dispatched.
func (e *Engine) Cancel(reason string) {
	e.state.setCancelled(reason)
	e.deps.Root.ApplyUnguarded(value.Patch{Op: "set", Path: "policy.runner_cancel_reason", Value: reason})
}

func (e *Engine) drainCommands(ctx context.Context) {
	for {
		out, ok := e.deps.Commands.Next()
		if !ok {
			return
		}
		if out.Rejected {
			e.emit(observer.EventCommandRejected, "", map[string]interface{}{"reason": out.Reason})
			continue
		}
		e.handleCommand(out.Envelope)
	}
}

func (e *Engine) handleCommand(env *command.Envelope) {
	switch env.Kind {
	case command.KindApplyPatches:
		p, err := command.DecodeApplyPatches(env)
		if err != nil {
			e.emit(observer.EventCommandRejected, "", map[string]interface{}{"reason": err.Error()})
			return
		}
		res := command.ApplyPatches(e.deps.Root, e.deps.Guard, p.Patches)
		for i, o := range res.Outcomes {
			fieldPath := patchFieldPath(i, len(res.Outcomes))
			if o.Applied {
				e.emit(observer.EventPatchApplied, "", map[string]interface{}{"field_path": fieldPath})
				continue
			}
			e.emit(observer.EventPatchRejected, "", map[string]interface{}{
				"field_path": fieldPath,
				"details": map[string]interface{}{
					"reason": o.Reason,
					"policy": map[string]interface{}{"allow_roots": e.deps.Guard.AllowRoots},
				},
			})
		}
		e.emit(observer.EventCommandAccepted, "", map[string]interface{}{"applied": res.Applied, "rejected": res.Rejected})
	case command.KindUserConfirm:
		p, err := command.DecodeUserConfirm(env)
		if err != nil || !p.Approve {
			e.emit(observer.EventCommandRejected, "", map[string]interface{}{"reason": "not approved"})
			return
		}
		actionKey := ""
		if n := e.deps.Plan.NodeByID(p.NodeID); n != nil {
			actionKey = n.Source.Protocol + ":" + n.Source.Action
		}
		e.Approve(p.NodeID, actionKey)
		e.emit(observer.EventCommandAccepted, p.NodeID, nil)
	case command.KindSelectProvider:
		p, err := command.DecodeSelectProvider(env)
		if err != nil {
			e.emit(observer.EventCommandRejected, "", map[string]interface{}{"reason": err.Error()})
			return
		}
		e.deps.Root.ApplyUnguarded(value.Patch{Op: "merge", Path: "ctx.runner_detect_overrides", Value: map[string]interface{}{p.DetectKind: p.Provider}})
		e.emit(observer.EventCommandAccepted, p.NodeID, nil)
	case command.KindCancel:
		p, _ := command.DecodeCancel(env)
		e.Cancel(p.Reason)
		e.emit(observer.EventCommandAccepted, p.NodeID, nil)
	default:
		e.emit(observer.EventCommandRejected, "", map[string]interface{}{"reason": "unknown kind"})
	}
}

// patchFieldPath names the rejected/applied patch within its
// apply_patches envelope. A single-patch envelope (the common case)
// reports the bare "payload.patches.path"; a multi-patch envelope
// indexes into the array.
func patchFieldPath(i, total int) string {
	if total <= 1 {
		return "payload.patches.path"
	}
	return "payload.patches[" + strconv.Itoa(i) + "].path"
}

func (e *Engine) saveCheckpoint() {
	if e.deps.Checkpoint == nil {
		return
	}
	cp := eventlog.NewCheckpoint()
	cp.Runtime = e.deps.Root.Snapshot()
	cp.CompletedNodeIDs = e.state.completedIDs()
	cp.PausedByNodeID = e.state.pauseStates()
	cp.PollStateByNodeID = e.state.pollStates()
	if err := e.deps.Checkpoint.Save(e.deps.RunID, cp); err != nil {
		e.emit(observer.EventError, "", map[string]interface{}{"error": "checkpoint save failed: " + err.Error()})
		return
	}
	e.emit(observer.EventCheckpointSaved, "", nil)
}

func (e *Engine) emit(t observer.EventType, nodeID string, data map[string]interface{}) {
	if e.deps.Observers == nil {
		return
	}
	e.seqMu.Lock()
	e.seq++
	seq := e.seq
	e.seqMu.Unlock()
	e.deps.Observers.Notify(context.Background(), observer.Event{
		RunID:     e.deps.RunID,
		Seq:       seq,
		Timestamp: time.Now(),
		Type:      t,
		NodeID:    nodeID,
		Data:      data,
	})
}

func nowMs() int64 { return time.Now().UnixMilli() }

type errNoExecutor struct{ kind string }

func (e errNoExecutor) Error() string { return "no executor registered for kind " + e.kind }

type assertFailedError struct {
	NodeID  string
	Message string
}

func (e *assertFailedError) Error() string { return "assert failed on node " + e.NodeID + ": " + e.Message }
