package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facecache/internal/detector"
	"github.com/andresmejia3/facecache/internal/identity"
	"github.com/andresmejia3/facecache/internal/store"
	"github.com/andresmejia3/facecache/internal/types"
	"github.com/andresmejia3/facecache/internal/utils"
	"github.com/andresmejia3/facecache/internal/video"
	"github.com/andresmejia3/facecache/internal/worker"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

// maxFrameBytes caps a single encoded frame from the decoder.
var maxFrameBytes = 64 * megabyte

var (
	scanOpts Options
	scanJSON bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Stream a video and report new and known faces per frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.InputPath, "input", "i", "", "Path to video")
	scanCmd.Flags().IntVarP(&scanOpts.NthFrame, "nth-frame", "n", 10, "Keyframe interval (e.g. scan every 10th frame)")
	scanCmd.Flags().IntVarP(&scanOpts.NumEngines, "engines", "e", 1, "Number of parallel engine workers")
	scanCmd.Flags().StringVarP(&scanOpts.Detector, "detector", "d", "", "Face region detector: pigo, cascade, rekognition or static (default from config)")
	scanCmd.Flags().StringVarP(&scanOpts.Strategy, "strategy", "s", "", "Cache match strategy: first or best (default from config)")
	scanCmd.Flags().BoolVarP(&scanOpts.Record, "record", "r", false, "Record the session and every verdict to the database")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Write one JSON line per scanned frame to stdout")

	scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}

// Buffer pool to reduce GC pressure during scanning
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// runScan orchestrates the video scanning process: Session setup, Engine Pool, FFmpeg streaming, and Progress tracking.
func runScan(ctx context.Context, opts Options) error {
	if err := validateScanFlags(&opts); err != nil {
		utils.ShowError("Invalid scan options", err, nil)
		return err
	}
	if err := applyOverrides(Cfg, opts); err != nil {
		return err
	}

	cache, err := newCache(Cfg)
	if err != nil {
		return err
	}

	// 1. Spawn the Engine Pool before touching ffmpeg so bad detector config fails fast
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Worker Engines (%s detector, %s match)...\n", opts.NumEngines, Cfg.Detector.Kind, cache.Strategy())
	engines := make([]*worker.Engine, 0, opts.NumEngines)
	closeEngines := func() {
		for _, started := range engines {
			started.Close()
		}
	}
	for i := 0; i < opts.NumEngines; i++ {
		e, err := worker.NewEngine(ctx, i, engineFactory(Cfg))
		if err != nil {
			closeEngines()
			utils.ShowError("Worker startup failed", err, nil)
			return err
		}
		engines = append(engines, e)
	}

	// 2. Optional session recording, only once the pool is up
	var rec *sessionRecorder
	if opts.Record {
		rec, err = startRecording(ctx, opts.InputPath)
		if err != nil {
			closeEngines()
			utils.ShowError("Failed to start session recording", err, nil)
			return err
		}
	}

	// 3. FPS for timestamps (best effort)
	fps, err := video.GetVideoFPS(ctx, opts.InputPath)
	if err != nil {
		Logger.Warn("could not determine frame rate, timestamps disabled", "error", err)
		fps = 0
	}

	// 4. Total frames for progress bar
	totalVideoFrames := video.GetTotalFrames(ctx, opts.InputPath)
	if totalVideoFrames <= 0 {
		// Fallback to a spinner
		totalVideoFrames = -1
	}

	bar := progressbar.NewOptions(totalVideoFrames,
		progressbar.OptionSetDescription("🔍 Scanning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	taskChan := make(chan types.FrameTask, opts.NumEngines)
	resultsChan := make(chan scanResult, opts.NumEngines*2)
	var wg sync.WaitGroup

	// 5. Start Aggregator (Consumer)
	// Must run concurrently to prevent deadlock on resultsChan
	var out io.Writer
	if scanJSON {
		out = os.Stdout
	}
	agg := aggregator{
		cache:  cache,
		log:    Logger,
		out:    out,
		fps:    fps,
		record: rec.recordFunc(ctx),
	}
	var summary scanSummary
	aggDone := make(chan struct{})
	go func() {
		summary = agg.processResults(resultsChan, opts.NthFrame)
		close(aggDone)
	}()

	for _, e := range engines {
		wg.Add(1)
		go func(e *worker.Engine) {
			defer wg.Done()
			startWorker(ctx, e, taskChan, resultsChan)
		}(e)
	}

	// 6. Start FFmpeg and split frames
	ffmpeg := utils.WrapCommand(video.NewFFmpegCmd(ctx, opts.InputPath))
	streamErr := streamFrames(ctx, ffmpeg, opts.NthFrame, taskChan, bar)

	close(taskChan)
	wg.Wait()
	close(resultsChan)
	<-aggDone
	bar.Finish()

	if rec != nil {
		if err := rec.finish(summary, cache.Size()); err != nil {
			Logger.Error("failed to finish session", "session", rec.id, "error", err)
		}
	}

	printSummary(summary, cache.Size())

	if streamErr != nil {
		return streamErr
	}
	return ctx.Err()
}

// streamFrames runs the decoder, splits its MJPEG output and queues every nth
// frame. The decoder process is always reaped before returning.
func streamFrames(ctx context.Context, ffmpeg *utils.SafeCommand, nth int, tasks chan<- types.FrameTask, bar *progressbar.ProgressBar) error {
	ffmpegOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create FFmpeg stdout pipe", err, nil)
		return err
	}
	defer ffmpegOut.Close()

	if err := ffmpeg.Start(); err != nil {
		utils.ShowError("Failed to start FFmpeg", err, nil)
		return err
	}

	scanner := bufio.NewScanner(ffmpegOut)
	scanner.Buffer(make([]byte, 0, min(megabyte, maxFrameBytes)), maxFrameBytes)
	scanner.Split(video.SplitJpeg)

	index := 0
	sent := 0
	cancelled := false
	for scanner.Scan() {
		bar.Add(1)

		if index%nth == 0 {
			buf := frameBufferPool.Get().([]byte)
			if cap(buf) < len(scanner.Bytes()) {
				buf = make([]byte, len(scanner.Bytes()))
			}
			buf = buf[:len(scanner.Bytes())]
			copy(buf, scanner.Bytes())

			select {
			case tasks <- types.FrameTask{Index: index, Data: buf}:
				sent++
			case <-ctx.Done():
				frameBufferPool.Put(buf)
				cancelled = true
			}
		}
		if cancelled {
			break
		}
		index++
	}

	if err := scanner.Err(); err != nil && !cancelled {
		// Nobody drains the pipe any more, so stop the decoder before reaping it.
		ffmpeg.Process.Kill()
		ffmpeg.Wait()
		utils.ShowError("Frame scanner failed", err, nil)
		return err
	}

	if err := ffmpeg.Wait(); err != nil && ctx.Err() == nil {
		utils.ShowError("FFmpeg execution failed", err, ffmpeg)
		return err
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Stream finished. Queued %d keyframes out of %d total.\n", sent, index)
	return nil
}

// scanResult wraps the output from a worker to be sent to the aggregator
type scanResult struct {
	Index      int
	Candidates []detector.Candidate
	Err        error
}

// startWorker feeds tasks through one engine until the channel closes.
// Every task yields exactly one result so the aggregator never stalls.
func startWorker(ctx context.Context, e *worker.Engine, tasks <-chan types.FrameTask, results chan<- scanResult) {
	defer e.Close()

	for task := range tasks {
		candidates, err := e.ProcessFrame(ctx, task)

		// Return buffer to pool immediately after decoding
		frameBufferPool.Put(task.Data[:0])

		results <- scanResult{Index: task.Index, Candidates: candidates, Err: err}
	}
}

// --- Aggregation ---

type scanSummary struct {
	Frames       int
	FailedFrames int
	Detections   int
	NewFaces     int
}

// frameReport is the --json line written for each scanned frame.
type frameReport struct {
	Frame     int                  `json:"frame"`
	Time      string               `json:"time,omitempty"`
	Faces     []types.DetectedFace `json:"faces"`
	CacheSize int                  `json:"cache_size"`
}

type aggregator struct {
	cache  *identity.Cache
	log    *slog.Logger
	out    io.Writer
	fps    float64
	record func(frameIndex int, faces []types.DetectedFace) error
}

// processResults re-orders worker output by frame index and resolves every
// frame against the cache in strict order.
func (a aggregator) processResults(results <-chan scanResult, nthFrame int) scanSummary {
	// Buffer for re-ordering frames (Worker 2 might finish before Worker 1)
	buffer := make(map[int]scanResult)
	nextFrame := 0

	var summary scanSummary
	var enc *json.Encoder
	if a.out != nil {
		enc = json.NewEncoder(a.out)
	}

	for res := range results {
		buffer[res.Index] = res

		// Process frames in strict order
		for {
			frame, ok := buffer[nextFrame]
			if !ok {
				break
			}
			delete(buffer, nextFrame)
			nextFrame += nthFrame
			summary.Frames++

			if frame.Err != nil {
				summary.FailedFrames++
				if errors.Is(frame.Err, context.Canceled) {
					continue
				}
				a.log.Warn("frame skipped", "frame", frame.Index, "error", frame.Err)
				continue
			}

			faces := detector.Resolve(a.cache, frame.Candidates)
			newFaces := types.CountNew(faces)
			summary.Detections += len(faces)
			summary.NewFaces += newFaces

			if newFaces > 0 {
				a.log.Info(fmt.Sprintf("%d new faces detected in frame %d. face cache: %d", newFaces, frame.Index, a.cache.Size()),
					"frame", frame.Index, "new", newFaces, "cache_size", a.cache.Size())
			}

			if a.record != nil {
				if err := a.record(frame.Index, faces); err != nil {
					a.log.Error("failed to record frame", "frame", frame.Index, "error", err)
				}
			}

			if enc != nil {
				report := frameReport{Frame: frame.Index, Faces: faces, CacheSize: a.cache.Size()}
				if a.fps > 0 {
					report.Time = fmtTime(float64(frame.Index) / a.fps)
				}
				if err := enc.Encode(report); err != nil {
					a.log.Error("failed to write frame report", "error", err)
				}
			}
		}
	}

	if len(buffer) > 0 {
		a.log.Warn("results left unprocessed", "count", len(buffer))
	}
	return summary
}

func printSummary(s scanSummary, cacheSize int) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 SCAN SUMMARY\n")
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🎞️  Frames Scanned:          %d\n", s.Frames)
	if s.FailedFrames > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Frames Failed:           %d\n", s.FailedFrames)
	}
	fmt.Fprintf(os.Stderr, "👁️  Total Face Detections:   %d\n", s.Detections)
	fmt.Fprintf(os.Stderr, "🆕 New Faces:               %d\n", s.NewFaces)
	fmt.Fprintf(os.Stderr, "🗂️  Face Cache Size:         %d\n", cacheSize)
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- Session recording ---

type sessionRecorder struct {
	db *store.Store
	id uuid.UUID
}

func startRecording(ctx context.Context, path string) (*sessionRecorder, error) {
	db, err := connectDB(ctx, true)
	if err != nil {
		return nil, err
	}
	videoID, err := video.GenerateVideoID(path)
	if err != nil {
		return nil, fmt.Errorf("failed to generate video ID: %w", err)
	}
	if err := db.EnsureVideoMetadata(ctx, videoID, path); err != nil {
		return nil, fmt.Errorf("failed to register video metadata: %w", err)
	}
	id, err := db.StartSession(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	fmt.Fprintf(os.Stderr, "📼 Processing Video ID: %s (session %s)\n", videoID[:12], id)
	return &sessionRecorder{db: db, id: id}, nil
}

// recordFunc returns nil for a nil recorder so the aggregator skips recording.
func (r *sessionRecorder) recordFunc(ctx context.Context) func(int, []types.DetectedFace) error {
	if r == nil {
		return nil
	}
	return func(frameIndex int, faces []types.DetectedFace) error {
		return r.db.InsertFaces(ctx, r.id, frameIndex, faces)
	}
}

func (r *sessionRecorder) finish(s scanSummary, cacheSize int) error {
	// Background: the session should be closed even after Ctrl+C.
	return r.db.FinishSession(context.Background(), r.id, store.SessionStats{
		Frames:    s.Frames,
		Faces:     s.Detections,
		NewFaces:  s.NewFaces,
		CacheSize: cacheSize,
	})
}

// validateScanFlags ensures all CLI arguments are valid before starting heavy processes.
func validateScanFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected a video file", opts.InputPath)
	}
	if opts.NthFrame < 1 {
		return fmt.Errorf("invalid nth-frame interval: must be >= 1, got %d", opts.NthFrame)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.Strategy != "" {
		if _, err := identity.ParseStrategy(opts.Strategy); err != nil {
			return err
		}
	}
	return nil
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
