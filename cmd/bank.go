package cmd

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/02061997/ai-tutor-experiment/internal/irt"
	"github.com/02061997/ai-tutor-experiment/internal/itembank"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Import, validate and list calibrated item banks",
}

var bankImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a bank file into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		f, err := itembank.LoadFile(args[0])
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("bank"); name != "" {
			f.Name = name
		}
		if f.Name == "" {
			f.Name = cfg.Server.Bank
		}

		bank, recs, warnings, err := f.Build()
		if err != nil {
			return err
		}
		printWarnings(warnings)
		if bank.Len() == 0 {
			return fmt.Errorf("%s has no usable items", args[0])
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.ItemRepo().Upsert(cmd.Context(), recs)
		if err != nil {
			return fmt.Errorf("import items: %w", err)
		}
		fmt.Printf("Imported %d items into bank %q (%d skipped).\n", n, f.Name, len(warnings))
		return nil
	},
}

var bankValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a bank file without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := itembank.LoadFile(args[0])
		if err != nil {
			return err
		}
		bank, _, warnings, err := f.Build()
		if err != nil {
			return err
		}
		printWarnings(warnings)

		items := bank.Items()
		fmt.Println(titleStyle.Render("Bank " + args[0]))
		fmt.Println(field("Format", f.FormatVersion))
		fmt.Println(field("Usable items", fmt.Sprintf("%d of %d", len(items), len(f.Items))))
		if len(items) == 0 {
			return fmt.Errorf("%s has no usable items", args[0])
		}
		lo, hi := difficultyRange(items)
		fmt.Println(field("Difficulty", fmt.Sprintf("%.2f to %.2f", lo, hi)))
		fmt.Println(field("Topics", strings.Join(bank.Tags(), ", ")))

		// Where the bank measures well: test information over a theta grid.
		fmt.Println()
		fmt.Println(dimStyle.Render("theta   information   SE"))
		for theta := -3.0; theta <= 3.0; theta++ {
			info := irt.TestInformation(items, theta)
			fmt.Printf("%5.1f   %11.2f   %.3f\n", theta, info, irt.StandardError(info, math.Inf(1)))
		}
		return nil
	},
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported items",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		bankName, _ := cmd.Flags().GetString("bank")
		if all, _ := cmd.Flags().GetBool("all"); all {
			bankName = ""
		} else if bankName == "" {
			bankName = cfg.Server.Bank
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		recs, err := s.ItemRepo().List(cmd.Context(), bankName)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No items found.")
			return nil
		}

		fmt.Printf("%-16s  %-10s  %6s  %6s  %5s  %5s  %s\n", "ID", "Bank", "a", "b", "c", "d", "Topics")
		fmt.Println(strings.Repeat("─", 72))
		for _, r := range recs {
			fmt.Printf("%-16s  %-10s  %6.2f  %6.2f  %5.2f  %5.2f  %s\n",
				truncate(r.ID, 16), truncate(r.Bank, 10), r.A, r.B, r.C, r.D, strings.Join(r.TopicTags, ","))
		}
		return nil
	},
}

func printWarnings(warnings []itembank.Warning) {
	for _, w := range warnings {
		fmt.Println(badStyle.Render("warning: ") + w.String())
	}
}

func difficultyRange(items []irt.Item) (lo, hi float64) {
	bs := make([]float64, len(items))
	for i, it := range items {
		bs[i] = it.Params.B
	}
	return slices.Min(bs), slices.Max(bs)
}

func init() {
	bankImportCmd.Flags().String("bank", "", "Bank name (defaults to the file's name, then server.bank)")
	bankListCmd.Flags().String("bank", "", "Bank to list (defaults to server.bank)")
	bankListCmd.Flags().Bool("all", false, "List items of every bank")

	bankCmd.AddCommand(bankImportCmd)
	bankCmd.AddCommand(bankValidateCmd)
	bankCmd.AddCommand(bankListCmd)
}
