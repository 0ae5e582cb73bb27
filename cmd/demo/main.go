package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Schellenberg3/VMControl/internal/config"
	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/policy"
)

var cfg *config.Demo

var rootCmd = &cobra.Command{
	Use:   "demo",
	Short: "Drive the simulated arm with random actions",
	Long: `Launches the simulated arm and runs a single episode of random
velocity commands, for re-familiarization with the environment. The episode
stops at the step cap, on task termination, or on interrupt.`,
	RunE: runDemo,
}

func init() {
	cfg = config.DefaultDemo()

	rootCmd.Flags().IntVar(&cfg.Steps, "steps", cfg.Steps, "Maximum steps to run")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Action noise seed (0 for random)")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("DEMO")
	viper.AutomaticEnv()
}

func runDemo(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	arm, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	if err != nil {
		return fmt.Errorf("create environment: %w", err)
	}
	defer arm.Close()

	random, err := policy.NewRandom(arm.ActionSpec(), rng)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received, stopping demo")
		cancel()
	}()

	return runEpisode(ctx, logger, arm, random)
}

func runEpisode(ctx context.Context, logger zerolog.Logger, arm env.GoalEnv, random policy.Policy) error {
	obs, err := arm.Reset()
	if err != nil {
		return fmt.Errorf("reset environment: %w", err)
	}

	episodeID := uuid.New().String()
	logger.Info().Str("episode_id", episodeID).Msg("starting random episode")

	for step := 0; step < cfg.Steps; step++ {
		select {
		case <-ctx.Done():
			logger.Info().Int("steps", step).Msg("demo stopped")
			return nil
		default:
		}

		action, err := random.SelectAction(obs[env.ObservationKey])
		if err != nil {
			return fmt.Errorf("select action: %w", err)
		}
		next, reward, done, err := arm.Step(action)
		if err != nil {
			return fmt.Errorf("step environment at step %d: %w", step, err)
		}
		obs = next

		logger.Info().
			Int("step", step).
			Float64("reward", reward).
			Str("frame", arm.Render()).
			Msg("step")

		if done {
			logger.Info().
				Str("episode_id", episodeID).
				Int("steps", step+1).
				Msg("episode terminated")
			return nil
		}
	}

	logger.Info().Str("episode_id", episodeID).Int("steps", cfg.Steps).Msg("step cap reached")
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
