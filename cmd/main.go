package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"study-tutor/handler"
	"study-tutor/internal/conversation"
	"study-tutor/internal/domain"
	"study-tutor/internal/integrations/backend"
	"study-tutor/internal/integrations/paramstore"
	"study-tutor/internal/logger"
	"study-tutor/internal/usecase"
)

const maxLineBytes = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout))
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) int {
	// ---- Flags ----
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(out, err)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// ---- Configuration (read only here) ----
	cfg, err := loadConfig(opts, os.Getenv, os.ReadFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	var console io.Writer
	if opts.Debug {
		console = logger.Stderr()
	}
	log := logger.New(logger.Options{
		FilePath:   cfg.LogFile,
		Production: cfg.Env == envProduction,
		Debug:      opts.Debug,
		Console:    console,
	})
	defer func() { _ = log.Sync() }()

	if cfg.ParamPrefix != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			log.Error("failed to load AWS config", zap.Error(err))
			return 1
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			log.Error("failed to create SSM client", zap.Error(err))
			return 1
		}
		if cfg, err = applyParameters(ctx, cfg, opts, params); err != nil {
			log.Error("failed to resolve endpoints", zap.Error(err))
			fmt.Fprintln(os.Stderr, "config:", err)
			return 1
		}
	}

	// ---- Clients ----
	client, err := backend.NewClient(
		backend.WithAppBaseURL(cfg.AppBaseURL),
		backend.WithIngestBaseURL(cfg.IngestBaseURL),
		backend.WithLogger(log.Named("backend")),
	)
	if err != nil {
		log.Error("failed to create backend client", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// ---- Lanes ----
	store := conversation.NewStore()
	store.Subscribe(func(turns []domain.Turn) {
		log.Debug("transcript updated", zap.Int("turns", len(turns)))
	})

	laneOpts := []usecase.Option{
		usecase.WithLogger(log.Named("usecase")),
		usecase.WithTimeout(cfg.Timeout),
		usecase.WithDifficulty(cfg.Difficulty),
	}
	orch, err := usecase.NewAskOrchestrator(client, store, laneOpts...)
	if err != nil {
		log.Error("failed to create ask orchestrator", zap.Error(err))
		return 1
	}
	pdf, err := usecase.NewPDFLane(client, laneOpts...)
	if err != nil {
		log.Error("failed to create pdf lane", zap.Error(err))
		return 1
	}
	yt, err := usecase.NewYouTubeLane(client, laneOpts...)
	if err != nil {
		log.Error("failed to create youtube lane", zap.Error(err))
		return 1
	}

	// ---- Handler ----
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := handler.NewHandler(handler.Deps{
		Ask:        orch,
		PDF:        pdf,
		YouTube:    yt,
		Health:     client,
		Transcript: store,
		Logger:     log.Named("handler"),
	}, out, opts.Plain)
	if err != nil {
		log.Error("failed to create handler", zap.Error(err))
		return 1
	}

	log.Info("session started",
		zap.String("app_base_url", cfg.AppBaseURL),
		zap.String("ingest_base_url", cfg.IngestBaseURL),
		zap.Duration("timeout", cfg.Timeout),
	)
	banner := color.New(color.Bold)
	if opts.Plain {
		banner.DisableColor()
	}
	banner.Fprintln(out, "Interactive Study Tool")
	fmt.Fprintln(out, "Ask questions about your study materials. Type /help for commands.")

	// End of input lets running work finish; /quit and signals abort it.
	finish := func(msg string, abort bool) int {
		if abort {
			cancel()
		}
		h.Wait()
		log.Info(msg)
		return 0
	}

	lines := readLines(sessionCtx, in)
	for {
		select {
		case <-ctx.Done():
			return finish("session interrupted", true)
		case line, ok := <-lines:
			if !ok {
				return finish("input closed", false)
			}
			if resp := h.Handle(sessionCtx, line); resp.Quit {
				return finish("session ended", true)
			}
		}
	}
}

// readLines feeds input lines to a channel that is closed at end of input or
// once ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
