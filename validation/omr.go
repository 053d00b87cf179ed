package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Gandorini/S-T-Station/notation"
	"github.com/Gandorini/S-T-Station/pkg/logger"
)

const (
	// DefaultOMRTimeout bounds a single recognizer run.
	DefaultOMRTimeout = 180 * time.Second

	omrOutputDir   = "output"
	containerMount = "/data"
	cleanupTimeout = 30 * time.Second
)

// RecognitionResult is the outcome of a completed recognizer run. Success with
// an empty XMLPath means the tool ran but produced no notation.
type RecognitionResult struct {
	Success bool
	XMLPath string
}

// Recognizer turns a scanned sheet into a notation document.
type Recognizer interface {
	Recognize(ctx context.Context, inputPath string) (RecognitionResult, error)
}

// OMROptions configures the containerized recognizer.
type OMROptions struct {
	Docker        string
	Image         string
	Timeout       time.Duration
	MaxConcurrent int64
	// User is passed to docker run --user so exported files are owned by
	// the server process. Empty means the current uid:gid.
	User string
}

// AudiverisOMR runs Audiveris in a throwaway container with the input's
// directory mounted at /data.
type AudiverisOMR struct {
	runner  Runner
	docker  string
	image   string
	user    string
	timeout time.Duration
	sem     *semaphore.Weighted
	newName func() string
}

// NewAudiverisOMR creates a recognizer that allows opts.MaxConcurrent jobs at once.
func NewAudiverisOMR(runner Runner, opts OMROptions) *AudiverisOMR {
	if opts.Docker == "" {
		opts.Docker = "docker"
	}
	if opts.Image == "" {
		opts.Image = "lsouchet/audiveris"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOMRTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.User == "" {
		opts.User = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	}
	return &AudiverisOMR{
		runner:  runner,
		docker:  opts.Docker,
		image:   opts.Image,
		user:    opts.User,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		newName: func() string { return "omr-" + uuid.NewString() },
	}
}

// OMRCommand returns the docker arguments that recognize file inside dir and
// export MusicXML to dir/output. A non-empty user runs the container as that
// uid:gid.
func OMRCommand(image, user, container, dir, file string) []string {
	args := []string{"run", "--rm", "--name", container}
	if user != "" {
		args = append(args, "--user", user)
	}
	return append(args,
		"-v", dir+":"+containerMount,
		image,
		"-batch", containerMount+"/"+file,
		"-export",
		"-output", containerMount+"/"+omrOutputDir,
	)
}

func (o *AudiverisOMR) Recognize(ctx context.Context, inputPath string) (RecognitionResult, error) {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("resolve omr input: %w", err)
	}
	dir, file := filepath.Dir(abs), filepath.Base(abs)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return RecognitionResult{}, &OMRExecutionError{ExitCode: -1, Err: asTimeout(err)}
	}
	defer o.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	name := o.newName()
	start := time.Now()
	logger.Info(ctx, "omr started", "container", name, "file", file)

	_, stderr, err := o.runner.Run(runCtx, o.docker, OMRCommand(o.image, o.user, name, dir, file)...)
	if runCtx.Err() != nil {
		o.removeContainer(ctx, name)
		cause := ErrOMRTimeout
		if ctx.Err() != nil {
			cause = asTimeout(ctx.Err())
		}
		execErr := &OMRExecutionError{ExitCode: -1, Stderr: string(stderr), Err: cause}
		logger.Warn(ctx, "omr aborted", "container", name, "error", execErr.Err, "duration_ms", time.Since(start).Milliseconds())
		return RecognitionResult{}, execErr
	}
	if err != nil {
		return RecognitionResult{}, &OMRExecutionError{ExitCode: exitCode(err), Stderr: string(stderr), Err: err}
	}

	xmlPath, err := findNotation(filepath.Join(dir, omrOutputDir))
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("scan omr output: %w", err)
	}
	logger.Info(ctx, "omr finished", "container", name, "notation", xmlPath != "", "duration_ms", time.Since(start).Milliseconds())
	return RecognitionResult{Success: true, XMLPath: xmlPath}, nil
}

// asTimeout marks a deadline, ours or the caller's, as ErrOMRTimeout while
// keeping context.DeadlineExceeded in the chain. Cancellation passes through.
func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrOMRTimeout, err)
	}
	return err
}

// removeContainer force-removes the named container. The request context may
// already be done, so cleanup gets its own budget.
func (o *AudiverisOMR) removeContainer(ctx context.Context, name string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, _, err := o.runner.Run(cctx, o.docker, "rm", "-f", name); err != nil {
		logger.Warn(ctx, "omr container cleanup failed", "container", name, "error", err)
	}
}

// findNotation returns the first notation file under root in lexical walk
// order, or "" when there is none or root does not exist.
func findNotation(root string) (string, error) {
	found := ""
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && notation.IsNotationFile(d.Name()) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
