package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Gandorini/S-T-Station/validation"
	"github.com/spf13/cobra"
)

var checkStrategy string

func init() {
	checkCmd.Flags().StringVarP(&checkStrategy, "strategy", "s", "sheet", "one of: sheet, convert, heuristic, deep")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validates a local file",
	Long:  `Runs one validation strategy on a local PDF or image and prints the verdict as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pipeline, cleanup, err := buildPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		u := validation.Upload{Filename: filepath.Base(args[0]), Data: data}
		var out any
		switch checkStrategy {
		case "sheet":
			out, err = pipeline.ValidateSheet(ctx, u)
		case "convert":
			out, err = pipeline.ValidateAndConvert(ctx, u)
		case "heuristic":
			out, err = pipeline.ValidateHeuristic(ctx, u)
		case "deep":
			out, err = pipeline.ValidateDeep(ctx, u)
		default:
			return fmt.Errorf("unknown strategy %q", checkStrategy)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
