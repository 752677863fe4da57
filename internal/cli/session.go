package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"heritagestore/internal/blob"
	"heritagestore/internal/config"
	"heritagestore/internal/core"
	"heritagestore/internal/logger"
)

// session is an open service plus the resources a command must release.
type session struct {
	svc    *core.Service
	out    *OutputFormatter
	logger *zap.Logger
}

func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Storage.Driver = opts.Driver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	log, err := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open blob store: %w", err), store.Close())
	}
	svcOpts := []core.ServiceOption{
		core.WithLogger(core.NewZapLogger(log)),
		core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: core.NewZapLogger(log.Named("audit"))}),
		core.WithBlobStore(blobs),
		core.WithCache(cfg.Cache.Size, cfg.Cache.TTL),
	}
	if opts.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	return &session{
		svc:    core.NewService(store, svcOpts...),
		out:    &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
		logger: log,
	}, nil
}

func (s *session) Close() error {
	err := s.svc.Close()
	// Sync on a terminal file descriptor fails harmlessly.
	_ = s.logger.Sync()
	return err
}

// withSession opens a session, runs fn and closes the session, joining the
// errors of both.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()
	return fn(ctx, s)
}
