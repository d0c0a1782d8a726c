package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "flashback",
		Short:        "Cut a music track at its onsets and assemble clips to the beat",
		SilenceUsage: true,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	analyze := &cobra.Command{
		Use:   "analyze <audio>",
		Short: "Detect onsets and print the slice timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0])
		},
	}
	addAnalysisFlags(analyze)

	render := &cobra.Command{
		Use:   "render <audio> <video>...",
		Short: "Segment the track and render a preview from the given clips",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], args[1:])
		},
	}
	addAnalysisFlags(render)
	render.Flags().String("out", "preview.mp4", "Output video path")

	root.AddCommand(analyze, render)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().Int("frame-size", 1024, "Analysis frame size in samples")
	cmd.Flags().Int("hop-size", 512, "Hop between frames in samples")
	cmd.Flags().StringSlice("odfs", nil, "Onset detection functions (e.g. hfc,complex)")
	cmd.Flags().Float64Slice("weights", nil, "Per-function weights, same length as --odfs")
	cmd.Flags().Float64("sensitivity", 0.65, "Onset sensitivity in (0, 1)")
}
