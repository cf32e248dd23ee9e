package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	pipelinecommand "github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/query"
	"github.com/spf13/cobra"
)

// Client is the slice of the command bus the CLI drives.
type Client interface {
	RunSweep(ctx context.Context, jobType string) (core.SweepOutcome, error)
	ListSweepLocks(ctx context.Context) ([]core.SweepLock, error)
	ReleaseSweepLock(ctx context.Context, jobType string) (pipelinecommand.ReleaseSweepLockResult, error)
	ListQueueItems(ctx context.Context, msg query.ListQueueItemsMessage) (query.QueueItemsPage, error)
}

// Opener connects a Client and returns its release func.
type Opener func(ctx context.Context) (Client, func() error, error)

// NewRootCmd returns the pipelinectl command tree.
func NewRootCmd(open Opener, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Operate the escrow completion pipeline",
		Long: `pipelinectl runs sweeps on demand and inspects the pipeline queues.
It reads the same environment as the server.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(SweepCmd(open))
	rootCmd.AddCommand(LocksCmd(open))
	rootCmd.AddCommand(QueueCmd(open))
	return rootCmd
}

// SweepCmd runs one sweep through the advisory lock.
func SweepCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <job-type>",
		Short:     "Run a single sweep now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, open, func(ctx context.Context, client Client) error {
				outcome, err := client.RunSweep(ctx, args[0])
				if err != nil {
					return fmt.Errorf("sweep %s: %w", args[0], err)
				}
				if outcome.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (already running)\n", color.New(color.FgYellow).Sprint("SKIPPED"), outcome.JobType)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s in %s\n", color.New(color.FgGreen).Sprint("DONE"), outcome.JobType, outcome.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
}

// LocksCmd lists the sweep lock rows.
func LocksCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Show sweep lock state per job type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, open, func(ctx context.Context, client Client) error {
				locks, err := client.ListSweepLocks(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(locks) == 0 {
					fmt.Fprintln(out, "No sweeps have run yet.")
					return nil
				}
				for _, lock := range locks {
					fmt.Fprintf(out, "%s %-40s started %s\n", lockState(lock), lock.JobType, lock.StartedAt.UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.AddCommand(LocksReleaseCmd(open))
	return cmd
}

// LocksReleaseCmd clears a lock left running by a sweep that never finished.
func LocksReleaseCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:       "release <job-type>",
		Short:     "Mark a stuck sweep lock as completed",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, open, func(ctx context.Context, client Client) error {
				result, err := client.ReleaseSweepLock(ctx, args[0])
				if err != nil {
					return fmt.Errorf("release %s: %w", args[0], err)
				}
				out := cmd.OutOrStdout()
				if !result.Released {
					fmt.Fprintf(out, "%s %s was not running\n", color.New(color.FgYellow).Sprint("UNCHANGED"), args[0])
					return nil
				}
				fmt.Fprintf(out, "%s %s (started %s)\n", color.New(color.FgGreen).Sprint("RELEASED"), result.Lock.JobType, result.Lock.StartedAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

// QueueCmd lists queue rows filtered by status.
func QueueCmd(open Opener) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "queue <incoming-webhooks|escrow-completions|outgoing-webhooks>",
		Short: "List queue rows, failed ones by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := query.ListQueueItemsMessage{
				Queue:  args[0],
				Status: core.QueueStatus(strings.ToLower(status)),
				Limit:  limit,
			}
			if err := msg.Validate(); err != nil {
				return err
			}
			return withClient(cmd, open, func(ctx context.Context, client Client) error {
				page, err := client.ListQueueItems(ctx, msg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d %s\n", page.Queue, page.Total, msg.Status)
				for _, item := range page.Items {
					fmt.Fprintf(out, "  %s chain=%d escrow=%s retries=%d",
						statusLabel(item.Status), item.ChainID, item.EscrowAddress, item.RetriesCount)
					if item.FailureDetail != "" {
						fmt.Fprintf(out, " reason=%q", item.FailureDetail)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(core.StatusFailed), "row status: pending, paid, completed or failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}

func withClient(cmd *cobra.Command, open Opener, fn func(context.Context, Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client, release, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open pipeline: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, client)
}

func jobTypeNames() []string {
	names := []string{}
	for _, jobType := range core.SweepJobTypes() {
		names = append(names, string(jobType))
	}
	return names
}

func lockState(lock core.SweepLock) string {
	if lock.Running() {
		return color.New(color.FgYellow).Sprint("RUNNING")
	}
	return color.New(color.FgGreen).Sprint("IDLE   ")
}

func statusLabel(status core.QueueStatus) string {
	switch status {
	case core.StatusFailed:
		return color.New(color.FgRed).Sprint(status)
	case core.StatusCompleted:
		return color.New(color.FgGreen).Sprint(status)
	default:
		return color.New(color.FgYellow).Sprint(status)
	}
}
