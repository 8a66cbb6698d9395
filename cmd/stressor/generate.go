package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/failproof/stressor/internal/generator"
	"github.com/failproof/stressor/internal/testcase"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an adversarial test case file",
	Long: `Generate test cases from the built-in payload banks and write them as a
JSON array the run command can consume. Categories: ` + strings.Join(generator.Categories(), ", ") + `.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("category", "", "Case category to generate (default: all categories)")
	generateCmd.Flags().Int("count", 0, "Cases per category (0 = one per template)")
	generateCmd.Flags().Int64("seed", 0, "Random seed for reproducible suites (0 = time-based)")
	generateCmd.Flags().StringP("out", "o", "cases.json", "Output file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	category, _ := cmd.Flags().GetString("category")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")
	out, _ := cmd.Flags().GetString("out")

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := generator.New(seed)

	var (
		cases []testcase.TestCase
		err   error
	)
	if category == "" {
		cases, err = gen.GenerateAll(count)
	} else {
		cases, err = gen.Generate(category, count)
	}
	if err != nil {
		return err
	}

	if err := testcase.Save(out, cases); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d test cases to %s\n", len(cases), out)
	return nil
}
