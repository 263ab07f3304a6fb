package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facecache/internal/navigator"
	"github.com/andresmejia3/facecache/internal/review"
	"github.com/andresmejia3/facecache/internal/utils"
	"github.com/andresmejia3/facecache/internal/vision"
	"github.com/spf13/cobra"
)

var reviewOpts Options

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Step through a video in the browser and watch the face cache grow",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd.Context(), reviewOpts)
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewOpts.InputPath, "input", "i", "", "Path to video")
	reviewCmd.Flags().StringVarP(&reviewOpts.Listen, "listen", "l", "", "Listen address (default from config, :8080)")
	reviewCmd.Flags().StringVarP(&reviewOpts.Detector, "detector", "d", "", "Face region detector: pigo, cascade, rekognition or static (default from config)")
	reviewCmd.Flags().StringVarP(&reviewOpts.Strategy, "strategy", "s", "", "Cache match strategy: first or best (default from config)")
	reviewCmd.Flags().IntVarP(&reviewOpts.StartFrame, "start", "f", 0, "Frame to open first")

	reviewCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(ctx context.Context, opts Options) error {
	opts.NthFrame = 1
	if err := validateScanFlags(&opts); err != nil {
		utils.ShowError("Invalid review options", err, nil)
		return err
	}
	if err := applyOverrides(Cfg, opts); err != nil {
		return err
	}

	capture, err := vision.OpenCapture(opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return err
	}
	defer capture.Close()

	det, err := newDetector(ctx, Cfg)
	if err != nil {
		utils.ShowError("Failed to build detector", err, nil)
		return err
	}
	defer det.Close()

	nav := navigator.New(capture, det, Logger)
	if _, err := nav.GoTo(ctx, opts.StartFrame); err != nil {
		Logger.Warn("failed to show start frame", "frame", opts.StartFrame, "error", err)
	}

	srv := review.NewServer(nav, Logger)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Listen(Cfg.Review.Listen)
	}()

	fmt.Fprintf(os.Stderr, "🖥️  Reviewing %s (%d frames @ %.2f fps, %s match) on http://localhost%s\n",
		opts.InputPath, capture.Count(), capture.FPS(), det.Cache().Strategy(), Cfg.Review.Listen)
	Logger.Info("review server listening", "addr", Cfg.Review.Listen, "frames", capture.Count(), "fps", capture.FPS())

	select {
	case <-ctx.Done():
		Logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			Logger.Error("shutdown error", "error", err)
		}
	case <-time.After(10 * time.Second):
		return errors.New("timed out waiting for the review server to stop")
	}
	Logger.Info("review server stopped", "cache_size", det.CacheSize())
	return nil
}
