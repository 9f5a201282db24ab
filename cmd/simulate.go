package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/itembank"
	"github.com/02061997/ai-tutor-experiment/internal/quiz"
	"github.com/02061997/ai-tutor-experiment/internal/simulate"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated examinees through the engine and report measurement quality",
	Long: "simulate draws examinees with known abilities, lets them answer according to the item response model " +
		"and compares the final estimates with the true abilities.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var bank *itembank.Bank
		if path, _ := cmd.Flags().GetString("bank"); path != "" {
			f, err := itembank.LoadFile(path)
			if err != nil {
				return err
			}
			var warnings []itembank.Warning
			bank, _, warnings, err = f.Build()
			if err != nil {
				return err
			}
			printWarnings(warnings)
		} else {
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			cat, warnings, err := quiz.LoadCatalog(ctx, s.ItemRepo(), cfg.Server.Bank)
			s.Close()
			if err != nil {
				return err
			}
			printWarnings(warnings)
			bank = cat.Bank()
		}
		if bank.Len() == 0 {
			return fmt.Errorf("bank has no usable items")
		}

		sim := simulate.DefaultConfig()
		sim.Attempt = cfg.Engine.AttemptConfig()
		sim.Examinees, _ = cmd.Flags().GetInt("examinees")
		sim.Seed, _ = cmd.Flags().GetUint64("seed")
		sim.ThetaMean, _ = cmd.Flags().GetFloat64("theta-mean")
		sim.ThetaSD, _ = cmd.Flags().GetFloat64("theta-sd")
		if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
			sim.Workers = w
		}

		rep, err := simulate.Run(ctx, attempt.NewController(bank), sim)
		if err != nil {
			return err
		}
		printReport(rep, sim, bank.Len())
		return nil
	},
}

func printReport(rep *simulate.Report, sim simulate.Config, bankSize int) {
	est := sim.Attempt.Estimator
	rule := sim.Attempt.Stopping
	lines := []string{
		titleStyle.Render("Simulation"),
		field("Examinees", sim.Examinees),
		field("Bank", fmt.Sprintf("%d items", bankSize)),
		field("Estimator", string(est.Method)),
		field("Stopping", fmt.Sprintf("%d to %d items, target SE %.2f", rule.MinItems, rule.MaxItems, rule.TargetSE)),
		"",
		field("Bias", fmt.Sprintf("%+.3f", rep.Bias)),
		field("RMSE", fmt.Sprintf("%.3f", rep.RMSE)),
		field("Mean length", fmt.Sprintf("%.1f items", rep.MeanItems)),
		field("Mean SE", fmt.Sprintf("%.3f", rep.MeanSE)),
		field("Not converged", rep.NonConverged),
	}
	fmt.Println(cardStyle.Render(strings.Join(lines, "\n")))

	fmt.Println()
	fmt.Println(dimStyle.Render("Stop reasons"))
	for _, reason := range slices.Sorted(maps.Keys(rep.Reasons)) {
		fmt.Printf("  %-16s %d\n", stopLabel(reason), rep.Reasons[reason])
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("Most exposed items"))
	for _, e := range rep.Exposure[:min(len(rep.Exposure), 10)] {
		fmt.Printf("  %-16s %5d  %5.1f%%\n", truncate(e.ItemID, 16), e.Count, 100*e.Rate)
	}
}

func stopLabel(r stopping.Reason) string {
	if r == stopping.ReasonNone {
		return "none"
	}
	return string(r)
}

func init() {
	simulateCmd.Flags().String("bank", "", "Bank file to simulate against (defaults to the imported server.bank)")
	simulateCmd.Flags().IntP("examinees", "n", 500, "Number of simulated examinees")
	simulateCmd.Flags().Uint64("seed", 1, "Random seed")
	simulateCmd.Flags().Int("workers", 0, "Concurrent examinees (defaults to GOMAXPROCS)")
	simulateCmd.Flags().Float64("theta-mean", 0, "Mean true ability")
	simulateCmd.Flags().Float64("theta-sd", 1, "Standard deviation of true ability")
}
