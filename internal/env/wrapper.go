package env

// stepLimitEnv caps episode length, forcing done once the limit is reached.
// The eval harness resets every fixed episode length and the demo driver
// caps its run the same way.
type stepLimitEnv struct {
	GoalEnv

	limit int
	steps int
}

// StepLimit wraps an environment with a maximum episode length.
func StepLimit(e GoalEnv, limit int) GoalEnv {
	return &stepLimitEnv{GoalEnv: e, limit: limit}
}

func (s *stepLimitEnv) Reset() (Observation, error) {
	s.steps = 0
	return s.GoalEnv.Reset()
}

func (s *stepLimitEnv) Step(action []float64) (Observation, float64, bool, error) {
	obs, reward, done, err := s.GoalEnv.Step(action)
	if err != nil {
		return obs, reward, done, err
	}
	s.steps++
	if s.steps >= s.limit {
		done = true
	}
	return obs, reward, done, nil
}
