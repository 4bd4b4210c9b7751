package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/samber/do"
	"github.com/serroba/shortify/internal/container"
	"github.com/serroba/shortify/internal/history"
	"github.com/serroba/shortify/internal/messaging"
	"github.com/serroba/shortify/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the injector of one command invocation.
type app struct {
	injector *do.Injector
	options  *container.Options
	logger   *zap.Logger
	session  *session.Session
}

func newApp(options *container.Options) (*app, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	injector := do.New()
	container.Register(injector, options)

	logger, err := do.Invoke[*zap.Logger](injector)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &app{injector: injector, options: options, logger: logger}, nil
}

// startSession starts the event consumers and restores the history.
// With refresh the service's links are merged in as well.
func (a *app) startSession(ctx context.Context, refresh bool) error {
	s, err := do.Invoke[*session.Session](a.injector)
	if err != nil {
		return err
	}

	group, err := do.Invoke[*messaging.ConsumerGroup](a.injector)
	if err != nil {
		return err
	}

	if err := group.Start(ctx); err != nil {
		return err
	}

	if refresh {
		s.Start(ctx)
	} else {
		h, err := do.Invoke[*history.Store](a.injector)
		if err != nil {
			return err
		}

		h.Load(ctx)
	}

	a.session = s

	return nil
}

// awaitRefresh gives the deferred refresh of a submission time to finish.
func (a *app) awaitRefresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.options.SettleDelay()+a.options.Timeout())
	defer cancel()

	if err := a.session.Wait(ctx); err != nil {
		a.logger.Warn("deferred refresh did not complete", zap.Error(err))
	}
}

func (a *app) shutdown() {
	if err := a.injector.Shutdown(); err != nil {
		a.logger.Error("shutdown error", zap.Error(err))
	}

	_ = a.logger.Sync()
}

type sessionMode int

const (
	noSession sessionMode = iota
	withSession
	withSessionNoRefresh
)

type action func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp runs fn with a fully wired app and exits non-zero when it fails.
func withApp(mode sessionMode, fn action) func(*cobra.Command, []string) {
	return humacli.WithOptions(func(cmd *cobra.Command, args []string, options *container.Options) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(options)
		if err != nil {
			exit(cmd, err)
		}

		err = a.run(ctx, mode, fn, cmd, args)
		a.shutdown()

		if err != nil {
			exit(cmd, err)
		}
	})
}

func (a *app) run(ctx context.Context, mode sessionMode, fn action, cmd *cobra.Command, args []string) error {
	if mode != noSession {
		if err := a.startSession(ctx, mode == withSession); err != nil {
			return err
		}
	}

	return fn(ctx, a, cmd, args)
}

func exit(cmd *cobra.Command, err error) {
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	os.Exit(1)
}
