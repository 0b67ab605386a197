package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/taskflow/types"
)

// branchResult is one fan-out branch's outcome, carried back to the join.
type branchResult struct {
	agent    string
	subtasks []string
	state    *types.State
}

// FanOut runs every agent that holds at least one ready, dependency-free
// subtask, concurrently. The run loop invokes it whenever a routing step
// enters the execution phase; callers driving state by hand may invoke it
// directly. Each branch executes on its own copy of the state;
// results merge back into s at the single join point below. Concurrent
// writers to one state are disallowed, which is exactly what the copies
// guarantee.
func (e *Engine) FanOut(ctx context.Context, s *types.State) error {
	work := e.readyWork(s)
	if len(work) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.config.MaxParallel > 0 {
		g.SetLimit(e.config.MaxParallel)
	}

	branches := make([]branchResult, len(work))
	i := 0
	for agent, subtasks := range work {
		idx := i
		i++
		agent := agent
		subtasks := subtasks

		e.mu.RLock()
		wrapper := e.agents[agent]
		e.mu.RUnlock()

		g.Go(func() error {
			branch, err := s.Clone()
			if err != nil {
				return fmt.Errorf("clone state for agent %s: %w", agent, err)
			}
			wrapper.Execute(gctx, branch)
			branches[idx] = branchResult{agent: agent, subtasks: subtasks, state: branch}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.join(s, branches)
	return nil
}

// readyWork groups ready subtask ids by their assigned agent, keeping only
// agents with a registered wrapper.
func (e *Engine) readyWork(s *types.State) map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	work := make(map[string][]string)
	for agent, assigned := range s.Coordination.AgentAssignments {
		if _, ok := e.agents[agent]; !ok {
			continue
		}
		for _, id := range assigned {
			st, ok := s.Task.SubTaskByID(id)
			if !ok || st.Status.Finished() {
				continue
			}
			if s.Task.Ready(st) {
				work[agent] = append(work[agent], id)
			}
		}
	}
	return work
}

// join folds fan-out branches back into the canonical state. Agent results
// and new messages are copied over; each branch's subtasks move to completed
// or failed depending on the branch outcome.
func (e *Engine) join(s *types.State, branches []branchResult) {
	baseMessages := len(s.Messages)
	now := time.Now()

	for _, br := range branches {
		if br.state == nil {
			continue
		}
		if result, ok := br.state.Workflow.AgentResults[br.agent]; ok {
			s.Workflow.AgentResults[br.agent] = result
		}
		for k, v := range br.state.Metrics {
			s.Metrics[k] = v
		}
		for _, msg := range br.state.Messages[baseMessages:] {
			s.Messages = append(s.Messages, msg)
		}

		failed := br.state.Error != nil
		for _, id := range br.subtasks {
			st, ok := s.Task.SubTaskByID(id)
			if !ok {
				continue
			}
			if failed {
				st.Status = types.StatusFailed
			} else {
				st.Status = types.StatusCompleted
				st.CompletedAt = &now
			}
			st.UpdatedAt = now
		}
		if failed && s.Error == nil {
			s.Error = br.state.Error
		}

		e.mu.Lock()
		e.stats.AgentExecutions++
		e.mu.Unlock()
		if e.collector != nil {
			outcome := "success"
			if failed {
				outcome = "error"
			}
			e.collector.RecordAgentExecution(br.agent, outcome)
		}
	}
	s.Touch()

	e.logger.Debug("fan-out joined",
		zap.String("thread_id", s.ThreadID),
		zap.Int("branches", len(branches)),
	)
}
