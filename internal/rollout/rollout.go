// Package rollout collects episodes from a goal-conditioned environment for
// replay buffer ingestion.
package rollout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/policy"
)

// Path is one recorded episode. Observations[i] is the observation the agent
// acted on at step i and NextObservations[i] the one that resulted.
type Path struct {
	EpisodeID        string
	Observations     []env.Observation
	Actions          [][]float64
	Rewards          []float64
	Terminals        []bool
	NextObservations []env.Observation
}

// Len is the number of steps in the path.
func (p *Path) Len() int { return len(p.Rewards) }

// Collector runs a policy through an environment one episode at a time.
type Collector struct {
	Env      env.GoalEnv
	Policy   policy.Policy
	MaxSteps int
	Logger   zerolog.Logger
}

// Collect runs a single episode and returns the recorded path. The episode
// stops at termination, MaxSteps, or context cancellation.
func (c *Collector) Collect(ctx context.Context) (*Path, error) {
	obs, err := c.Env.Reset()
	if err != nil {
		return nil, fmt.Errorf("reset environment: %w", err)
	}

	path := &Path{EpisodeID: uuid.New().String()}
	for step := 0; c.MaxSteps <= 0 || step < c.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		action, err := c.Policy.SelectAction(obs[env.ObservationKey])
		if err != nil {
			return nil, fmt.Errorf("select action: %w", err)
		}
		next, reward, done, err := c.Env.Step(action)
		if err != nil {
			return nil, fmt.Errorf("step environment: %w", err)
		}

		path.Observations = append(path.Observations, obs)
		path.Actions = append(path.Actions, action)
		path.Rewards = append(path.Rewards, reward)
		path.Terminals = append(path.Terminals, done)
		path.NextObservations = append(path.NextObservations, next)

		if done {
			break
		}
		obs = next
	}

	c.Logger.Debug().
		Str("episode_id", path.EpisodeID).
		Int("steps", path.Len()).
		Msg("collected episode")
	return path, nil
}
