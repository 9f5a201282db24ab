package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/feedback"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect and expire quiz attempts",
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		session, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		recs, err := s.AttemptRepo().List(ctx, store.AttemptFilter{Status: status, SessionID: session, Limit: limit})
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No attempts found.")
			return nil
		}

		fmt.Printf("%-36s  %-12s  %-19s  %5s  %7s  %6s\n", "ID", "Status", "Updated", "Items", "Theta", "SE")
		fmt.Println(strings.Repeat("─", 96))
		for _, r := range recs {
			fmt.Printf("%-36s  %s  %-19s  %5d  %7.3f  %6.3f\n",
				r.ID,
				statusStyle(r.Status).Width(12).Render(r.Status),
				r.UpdatedAt.Local().Format(timeLayout),
				r.ItemCount, r.Theta, r.StandardError)
		}

		counts, err := s.AttemptRepo().CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		fmt.Println()
		fmt.Println(dimStyle.Render(fmt.Sprintf("in progress %d · completed %d · aborted %d",
			counts[store.AttemptInProgress], counts[store.AttemptCompleted], counts[store.AttemptAborted])))
		return nil
	},
}

var attemptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one attempt with its ability trajectory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		rec, err := s.AttemptRepo().Get(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("attempt %s not found", args[0])
		}
		if err != nil {
			return err
		}
		var state attempt.Record
		if err := json.Unmarshal(rec.Data, &state); err != nil {
			return fmt.Errorf("decode attempt %s: %w", rec.ID, err)
		}
		answers, err := s.EventRepo().AnswerEvents(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("answer events: %w", err)
		}

		lines := []string{
			titleStyle.Render("Attempt " + rec.ID),
			field("Session", rec.SessionID),
			field("Quiz", rec.QuizID),
			field("Status", statusStyle(rec.Status).Render(rec.Status)),
			field("Started", rec.CreatedAt.Local().Format(timeLayout)),
			field("Theta", fmt.Sprintf("%.3f (SE %.3f)", rec.Theta, rec.StandardError)),
			field("Items", rec.ItemCount),
		}
		if state.Pending != "" {
			lines = append(lines, field("Pending", state.Pending))
		}
		if sum := state.Summary; sum != nil {
			lines = append(lines,
				field("Stopped", string(sum.StopReason)),
				field("Score", fmt.Sprintf("%d correct (%.0f%%)", sum.CorrectCount, sum.ScorePercent)),
				field("Converged", sum.Converged),
			)
			if len(sum.WeakTopics) > 0 {
				lines = append(lines, field("Weak topics", strings.Join(sum.WeakTopics, ", ")))
			}
		}
		if state.AbortReason != "" {
			lines = append(lines, field("Abort reason", state.AbortReason))
		}
		fmt.Println(cardStyle.Render(strings.Join(lines, "\n")))

		if len(answers) > 0 {
			fmt.Println()
			fmt.Printf("%3s  %-16s  %2s  %7s  %6s\n", "#", "Item", "", "Theta", "SE")
			for _, a := range answers {
				fmt.Printf("%3d  %-16s  %s  %7.3f  %6.3f\n",
					a.Position, truncate(a.ItemID, 16), mark(a.Correct), a.Theta, a.StandardError)
			}
		}

		if len(rec.Feedback) > 0 {
			var fb feedback.Feedback
			if err := json.Unmarshal(rec.Feedback, &fb); err == nil {
				fmt.Println()
				fmt.Println(titleStyle.Render("Study feedback"))
				fmt.Println(fb.Summary)
				for _, fa := range fb.FocusAreas {
					fmt.Printf("  • %s: %s\n", fa.Topic, fa.Suggestion)
				}
			}
		}
		return nil
	},
}

var attemptsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Abort in-progress attempts idle longer than the session timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			olderThan = cfg.Server.SessionTimeout
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		svc, _, err := newQuizService(cmd.Context(), cfg, s, quizDeps{})
		if err != nil {
			return err
		}
		n, err := svc.AbortStale(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Expired %d attempts idle for more than %s.\n", n, olderThan.Round(time.Second))
		return nil
	},
}

func init() {
	attemptsListCmd.Flags().String("status", "", "Filter by status (in_progress, completed, aborted)")
	attemptsListCmd.Flags().String("session", "", "Filter by session id")
	attemptsListCmd.Flags().IntP("limit", "n", 20, "Number of attempts to show")
	attemptsExpireCmd.Flags().Duration("older-than", 0, "Idle time before an attempt is aborted (defaults to server.session_timeout)")

	attemptsCmd.AddCommand(attemptsListCmd)
	attemptsCmd.AddCommand(attemptsShowCmd)
	attemptsCmd.AddCommand(attemptsExpireCmd)
}
