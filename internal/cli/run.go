package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/martinbojnansky/flashback/internal/pipeline"
	"github.com/martinbojnansky/flashback/internal/ports/adapters/beepcodec"
	"github.com/martinbojnansky/flashback/internal/ports/adapters/ffmpeg"
	"github.com/martinbojnansky/flashback/internal/sequencer"
	"github.com/martinbojnansky/flashback/internal/types"
	"github.com/martinbojnansky/flashback/internal/usecase"
)

func runAnalyze(cmd *cobra.Command, input string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	analyzer := usecase.New(usecase.Deps{Codec: beepcodec.New()})
	if params := analysisParams(cmd); len(params) > 0 {
		if err := analyzer.Configure(params); err != nil {
			return err
		}
	}

	res, err := analyzer.Analyze(cmd.Context(), data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d onsets, %d slices\n", len(res.Onsets), len(res.Slices))
	var at float64
	for i, d := range res.Durations {
		fmt.Fprintf(out, "%3d  %s  %.3fs\n", i, sequencer.FormatTime(at), d)
		at += d
	}
	return nil
}

func runRender(cmd *cobra.Command, audioPath string, videoPaths []string) error {
	outPath, _ := cmd.Flags().GetString("out")

	engine := ffmpeg.New(getenvDefault("FLASHBACK_FFMPEG", "ffmpeg"))
	defer engine.Close()

	session, err := pipeline.NewSession(pipeline.Config{
		Engine: engine,
		Codec:  beepcodec.New(),
		Logf: func(format string, args ...any) {
			fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
	defer cancel()
	session.Start(ctx)

	if params := analysisParams(cmd); len(params) > 0 {
		if err := session.Configure(params); err != nil {
			return err
		}
	}

	audio, err := readFile(audioPath)
	if err != nil {
		return err
	}
	durations, err := session.AnalyzeAudio(ctx, audio)
	if err != nil {
		return err
	}
	if len(durations) == 0 {
		return fmt.Errorf("%s: no slices detected", audioPath)
	}

	// Fill the timeline round-robin: slice i gets clip i mod len(videos).
	for i := range durations {
		slot, err := session.AddSlot(i, i+1)
		if err != nil {
			return err
		}
		video, err := readFile(videoPaths[i%len(videoPaths)])
		if err != nil {
			return err
		}
		if _, err := session.AttachVideo(slot.ID, video); err != nil {
			return err
		}
	}

	session.RequestPreview()
	if err := session.Flush(ctx); err != nil {
		return err
	}

	url, ok := session.Preview()
	if !ok {
		return fmt.Errorf("render produced no preview")
	}
	data, ok := session.PreviewData(url)
	if !ok {
		return fmt.Errorf("preview handle %s did not resolve", url)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d slots, %d bytes)\n", outPath, len(durations), len(data))
	return nil
}

// analysisParams collects only the flags the user set, so defaults never
// override a configured session and odfs/weights stay an atomic pair.
func analysisParams(cmd *cobra.Command) map[string]any {
	params := map[string]any{}
	if cmd.Flags().Changed("frame-size") {
		v, _ := cmd.Flags().GetInt("frame-size")
		params["frameSize"] = v
	}
	if cmd.Flags().Changed("hop-size") {
		v, _ := cmd.Flags().GetInt("hop-size")
		params["hopSize"] = v
	}
	if cmd.Flags().Changed("odfs") {
		v, _ := cmd.Flags().GetStringSlice("odfs")
		params["odfs"] = v
	}
	if cmd.Flags().Changed("weights") {
		v, _ := cmd.Flags().GetFloat64Slice("weights")
		params["odfsWeights"] = v
	}
	if cmd.Flags().Changed("sensitivity") {
		v, _ := cmd.Flags().GetFloat64("sensitivity")
		params["sensitivity"] = v
	}
	return params
}

func readFile(path string) (types.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.File{}, err
	}
	return types.File{Name: filepath.Base(path), Data: data}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
