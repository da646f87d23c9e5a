package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/cutdeck/internal/config"
	"github.com/kikiluvv/cutdeck/internal/ffmpeg"
	"github.com/kikiluvv/cutdeck/internal/gui"
	"github.com/kikiluvv/cutdeck/internal/library"
	"github.com/kikiluvv/cutdeck/internal/logging"
	"github.com/kikiluvv/cutdeck/internal/pipeline"
	"github.com/kikiluvv/cutdeck/internal/playback"
	"github.com/kikiluvv/cutdeck/internal/session"
	"github.com/kikiluvv/cutdeck/pkg/util"
)

var (
	cfgFile   string
	verbose   bool
	logFile   string
	cutSpecs  []string
	outputDir string
	force     bool

	closeLog = func() error { return nil }
)

func main() {
	ctx := context.Background()

	err := rootCmd.ExecuteContext(ctx)
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutdeck",
	Short: "cutdeck - mark cut points in a video and export the pieces",
	Long:  "Pick a video from the working directory, mark where it should be cut, and export every segment as its own file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := logging.Init(logging.Options{Verbose: verbose, File: logFile})
		if err != nil {
			return err
		}
		closeLog = closer

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return guiCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (default from config: output)")

	for _, c := range []*cobra.Command{planCmd, splitCmd} {
		c.Flags().StringSliceVarP(&cutSpecs, "cut", "c", nil, "cut point: seconds, MM:SS, HH:MM:SS.mmm or f<frame> (repeatable)")
	}
	configInitCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(guiCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(configCmd)
}

// components is everything a command needs to edit one video.
type components struct {
	cfg      *config.Config
	executor *ffmpeg.Executor
	session  *session.EditSession
}

func newComponents(cfg *config.Config) (*components, error) {
	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	exporter := pipeline.New(log.Logger, &pipeline.Config{
		Encoding: ffmpeg.EncodingOptions{
			VideoCodec: cfg.FFmpeg.VideoCodec,
			Preset:     cfg.FFmpeg.Preset,
		},
		OutputExt: "mp4",
	}, exec)

	sess := session.New(log.Logger, exec, exporter, session.Options{
		DefaultFPS:        cfg.DefaultFPS,
		MinSegmentSeconds: cfg.MinSegmentSeconds,
		OutputDir:         cfg.OutputDir,
	})

	return &components{cfg: cfg, executor: exec, session: sess}, nil
}

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Open the editor window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		c, err := newComponents(cfg)
		if err != nil {
			return err
		}

		gui.RunGUI(cmd.Context(), gui.Deps{
			Logger:       logging.WithComponent("gui"),
			Session:      c.session,
			Player:       playback.NewTransport(),
			Library:      library.NewScanner(cfg.WorkDir, cfg.VideoExtensions),
			Frames:       c.executor,
			PollInterval: cfg.PollInterval,
		})
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the videos available for editing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		scanner := library.NewScanner(cfg.WorkDir, cfg.VideoExtensions)
		videos, err := scanner.Scan()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(videos) == 0 {
			fmt.Fprintf(out, "no videos in %s\n", scanner.Dir())
			return nil
		}
		for _, v := range videos {
			fmt.Fprintf(out, "%-40s %10s\n", v.Name, humanize.Bytes(uint64(v.Size)))
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [video]",
	Short: "Show the frame rate and duration cutdeck will use for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newComponents(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}

		info, err := c.session.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fps := fmt.Sprintf("%.3f", info.FPS)
		if !info.FPSProbed {
			fps += " (default, probe failed)"
		}
		fmt.Fprintf(out, "file:     %s\n", info.Path)
		fmt.Fprintf(out, "fps:      %s\n", fps)
		fmt.Fprintf(out, "duration: %s (%.3fs)\n", util.FormatDuration(info.Duration), info.Duration.Seconds())
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [video]",
	Short: "Show the segments a split would export, without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, sess, err := loadWithCuts(cmd, args[0])
		if err != nil {
			return err
		}

		segments, err := sess.Plan()
		if err != nil {
			return err
		}

		base, _ := util.SplitName(args[0])
		out := cmd.OutOrStdout()
		for _, seg := range segments {
			fmt.Fprintf(out, "%3d  %s -> %s  (%s)  %s\n",
				seg.Number,
				util.FormatDuration(util.Seconds(seg.Start)),
				util.FormatDuration(util.Seconds(seg.End)),
				seg.Duration().Round(time.Millisecond),
				filepath.Join(c.cfg.OutputDir, seg.OutputName(base, "mp4")))
		}
		if len(segments) == 0 {
			fmt.Fprintln(out, "nothing to export: every segment is too short")
		}
		return nil
	},
}

var splitCmd = &cobra.Command{
	Use:   "split [video]",
	Short: "Cut a video at the given points and export every segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, sess, err := loadWithCuts(cmd, args[0])
		if err != nil {
			return err
		}

		logger := logging.WithComponent("split")
		report, err := sess.Export(cmd.Context(), func(ev pipeline.ProgressEvent) {
			logger.Debug().
				Int("segment", ev.Segment.Number).
				Int("of", ev.Total).
				Float64("percent", ev.Percent).
				Msg("encoding")
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range report.Outputs {
			fmt.Fprintf(out, "%s  %s  %s\n", f.Path, humanize.Bytes(uint64(f.Size)), f.Elapsed.Round(time.Millisecond))
		}
		fmt.Fprintf(out, "%d file(s), %s, done in %s\n",
			len(report.Outputs), humanize.Bytes(uint64(report.TotalSize())), report.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func loadWithCuts(cmd *cobra.Command, video string) (*components, *session.EditSession, error) {
	c, err := newComponents(config.FromContext(cmd.Context()))
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.session.Load(cmd.Context(), video); err != nil {
		return nil, nil, err
	}
	if err := markCuts(c.session, cutSpecs); err != nil {
		return nil, nil, err
	}
	return c, c.session, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}
