package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Schellenberg3/VMControl/internal/checkpoint"
	"github.com/Schellenberg3/VMControl/internal/config"
	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/policy"
)

var cfg *config.Eval

var rootCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a trained manipulation policy",
	Long: `Loads a trained policy by name and steps it through the simulated
arm environment, resetting every episode length. Each action waits for user
confirmation unless --no-confirm is given.`,
	RunE: runEval,
}

func init() {
	cfg = config.DefaultEval()

	rootCmd.Flags().StringVarP(&cfg.Name, "name", "n", cfg.Name, "Name of the trained network to load (required)")
	rootCmd.Flags().StringVar(&cfg.NetworksDir, "networks-dir", cfg.NetworksDir, "Checkpoint root directory")
	rootCmd.Flags().IntVar(&cfg.Steps, "steps", cfg.Steps, "Total evaluation steps")
	rootCmd.Flags().IntVar(&cfg.EpisodeLen, "episode-len", cfg.EpisodeLen, "Steps per episode before reset")
	rootCmd.Flags().IntVarP(&cfg.ImageSize, "image-size", "s", cfg.ImageSize, "Square pixel size of image observations (0 disables)")
	rootCmd.Flags().BoolVar(&cfg.Depth, "depth", cfg.Depth, "Use depth instead of RGB image observations")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	var noConfirm bool
	rootCmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "Do not wait for confirmation between actions")
	rootCmd.PreRun = func(cmd *cobra.Command, args []string) {
		cfg.Confirm = !noConfirm
	}

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("EVAL")
	viper.AutomaticEnv()
}

func runEval(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	weights, err := checkpoint.Load(cfg.NetworksDir, cfg.Name)
	if err != nil {
		return fmt.Errorf("load trained policy: %w", err)
	}

	armCfg := env.DefaultArmConfig()
	armCfg.ImageSize = cfg.ImageSize
	armCfg.Depth = cfg.Depth
	arm, err := env.NewReachArm(armCfg, nil)
	if err != nil {
		return fmt.Errorf("create environment: %w", err)
	}
	defer arm.Close()

	bounds, ok := arm.ActionSpec().(env.Box)
	if !ok {
		return fmt.Errorf("arm action space is not continuous")
	}
	agent, err := policy.NewLinear(weights, bounds)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	logger.Info().
		Str("name", cfg.Name).
		Int("steps", cfg.Steps).
		Int("episode_len", cfg.EpisodeLen).
		Msg("loaded all, ready to run simulation")

	return runLoop(logger, arm, agent)
}

// runLoop steps the policy through the environment, resetting at every
// episode boundary and rendering after each step.
func runLoop(logger zerolog.Logger, arm env.GoalEnv, agent policy.Policy) error {
	stdin := bufio.NewScanner(os.Stdin)
	var obs env.Observation
	var err error

	for i := 0; i < cfg.Steps; i++ {
		if i%cfg.EpisodeLen == 0 {
			logger.Info().Msg("reset episode")
			obs, err = arm.Reset()
			if err != nil {
				return fmt.Errorf("reset environment: %w", err)
			}
		}

		action, err := agent.SelectAction(obs[env.ObservationKey])
		if err != nil {
			return fmt.Errorf("select action at step %d: %w", i, err)
		}

		if cfg.Confirm {
			fmt.Print("press enter to take action...")
			if !stdin.Scan() {
				logger.Info().Msg("input closed, stopping evaluation")
				return nil
			}
		}

		next, reward, done, err := arm.Step(action)
		if err != nil {
			return fmt.Errorf("step environment at step %d: %w", i, err)
		}
		obs = next

		// Rendering each step slows the loop down but is the point of the
		// harness.
		logger.Info().
			Int("step", i).
			Float64("reward", reward).
			Bool("done", done).
			Str("frame", arm.Render()).
			Msg("step")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
