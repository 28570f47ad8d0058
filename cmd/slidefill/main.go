// Command slidefill fills placeholder tokens in a PPTX template from a
// YAML or JSON data file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsawler/slidefill"
	"github.com/tsawler/slidefill/pptx"
)

var (
	verbose bool
	logger  *zap.Logger

	templatePath string
	dataPath     string
	outputPath   string
)

var rootCmd = &cobra.Command{
	Use:   "slidefill",
	Short: "Fill placeholder tokens in PPTX templates",
	Long: `slidefill substitutes {{name}} tokens, table contents, and images
in a PPTX template with data from a YAML or JSON file, keyed by slide
title. Slides without data are copied through unchanged.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill a template and write the result",
	Long: `Fill opens the template, applies the replacement data, and writes a
new presentation. The template file is never modified. Any fatal error
(unreadable template, malformed data, missing replacement image) aborts
before output is written.

Example:
  slidefill fill -t deck.pptx -d data.yaml -o out.pptx`,
	RunE: runFill,
}

var titlesCmd = &cobra.Command{
	Use:   "titles [template.pptx]",
	Short: "List the slide titles of a template",
	Long: `Titles prints each slide's title, the key the data file must use to
address that slide.`,
	Args: cobra.ExactArgs(1),
	RunE: runTitles,
}

func runFill(cmd *cobra.Command, args []string) error {
	logger.Info("filling template",
		zap.String("template", templatePath),
		zap.String("data", dataPath),
		zap.String("output", outputPath))

	err := slidefill.Open(templatePath).
		WithBundleFile(dataPath).
		WithLogger(logger).
		SaveAs(outputPath)
	if err != nil {
		return err
	}

	logger.Info("presentation saved", zap.String("output", outputPath))
	return nil
}

func runTitles(cmd *cobra.Command, args []string) error {
	t, err := pptx.OpenTemplate(args[0])
	if err != nil {
		return err
	}

	for i, title := range t.Titles() {
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%d\t%s\n", i+1, title)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	fillCmd.Flags().StringVarP(&templatePath, "template", "t", "", "path to the PPTX template (required)")
	fillCmd.Flags().StringVarP(&dataPath, "data", "d", "", "path to the YAML/JSON replacement data (required)")
	fillCmd.Flags().StringVarP(&outputPath, "output", "o", "", "path for the filled presentation (required)")
	_ = fillCmd.MarkFlagRequired("template")
	_ = fillCmd.MarkFlagRequired("data")
	_ = fillCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(titlesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
