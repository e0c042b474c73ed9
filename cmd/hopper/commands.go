package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hopper/internal/config"
	"hopper/internal/store"
	"hopper/internal/wire"
)

func openStore() (*config.Config, *store.Store, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checked-in attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			attempts, err := st.ListAttempts(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(attempts))
			for _, attempt := range attempts {
				rows = append(rows, []string{
					strconv.FormatInt(attempt.ID, 10),
					filepath.Base(attempt.PackagePath),
					attempt.CreatedAt.Format(time.RFC3339),
					validityLabel(attempt),
					boolLabel(attempt.QueuedForCheckout),
				})
			}
			fmt.Println(renderTable(
				[]string{"ID", "PACKAGE", "CHECKED IN", "STATE", "QUEUED"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <attempt-id>",
		Short: "Show one attempt with its checkpoints and notices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attempt id %q", args[0])
			}

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			attempt, err := st.GetAttempt(cmd.Context(), id)
			if err != nil {
				return err
			}
			if attempt == nil {
				return fmt.Errorf("attempt %d not found", id)
			}

			fmt.Printf("Attempt %d\n", attempt.ID)
			fmt.Printf("  Package:   %s\n", attempt.PackagePath)
			fmt.Printf("  Checksum:  %s\n", attempt.Checksum)
			fmt.Printf("  State:     %s\n", validityLabel(attempt))
			if attempt.ArticlePkgID != nil {
				article, err := st.GetArticle(cmd.Context(), *attempt.ArticlePkgID)
				if err == nil && article != nil {
					fmt.Printf("  Article:   %s\n", article.ArticleTitle)
					fmt.Printf("  Journal:   %s\n", article.JournalTitle)
				}
			}

			for _, point := range []store.Point{store.PointCheckin, store.PointValidation, store.PointCheckout} {
				if err := printCheckpoint(cmd.Context(), st, attempt.ID, point); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printCheckpoint(ctx context.Context, st *store.Store, attemptID int64, point store.Point) error {
	cp, err := st.CheckpointFor(ctx, attemptID, point)
	if err != nil {
		return err
	}
	if cp == nil {
		return nil
	}

	window := "unopened"
	switch {
	case cp.StartedAt != nil && cp.EndedAt != nil:
		window = fmt.Sprintf("%s .. %s",
			cp.StartedAt.Format(time.RFC3339), cp.EndedAt.Format(time.RFC3339))
	case cp.StartedAt != nil:
		window = fmt.Sprintf("%s .. open", cp.StartedAt.Format(time.RFC3339))
	}
	fmt.Printf("\nCheckpoint %s (%s)\n", point, window)

	notices, err := st.Notices(ctx, cp.ID)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(notices))
	for _, notice := range notices {
		rows = append(rows, []string{
			notice.RecordedAt.Format("15:04:05"),
			notice.Label,
			string(notice.Status),
			notice.Message,
		})
	}
	if len(rows) > 0 {
		fmt.Println(renderTable(
			[]string{"TIME", "STAGE", "STATUS", "MESSAGE"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
	return nil
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate attempt counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.AttemptStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(renderTable(
				[]string{"TOTAL", "VALID", "INVALID", "QUEUED"},
				[][]string{{
					strconv.Itoa(stats.Total),
					strconv.Itoa(stats.Valid),
					strconv.Itoa(stats.Invalid),
					strconv.Itoa(stats.Queued),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <attempt-id>",
		Short: "Remove an attempt and its checkpoints and notices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attempt id %q", args[0])
			}

			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := st.DeleteAttempt(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("attempt %d not found", id)
			}
			fmt.Printf("removed attempt %d\n", id)
			return nil
		},
	}
}

func newReportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "Replay the daemon's authenticated report stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Reporting.Secret == "" {
				return fmt.Errorf("reporting.secret is not configured")
			}

			stream, err := os.Open(filepath.Join(cfg.Paths.WorkDir, "reports.stream"))
			if err != nil {
				return err
			}
			defer stream.Close()

			reader := wire.NewReader(stream, []byte(cfg.Reporting.Secret))
			var rows [][]string
			for {
				report, err := reader.ReadReport()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					report.OccurredAt.Format(time.RFC3339),
					report.Outcome,
					filepath.Base(report.Path),
					report.Message,
				})
			}
			fmt.Println(renderTable(
				[]string{"TIME", "OUTCOME", "PACKAGE", "MESSAGE"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func validityLabel(attempt *store.Attempt) string {
	if attempt.IsValid {
		return "valid"
	}
	return "invalid"
}

func boolLabel(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
