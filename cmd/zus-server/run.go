// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zusserver

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kurafs/zus/pkg/admin"
	"github.com/kurafs/zus/pkg/cli"
	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
)

var ZusServerCmd = &cli.Command{
	Run:       zusServerCmdRun,
	UsageLine: "zus-server [-config <path>] [-zuf-root <path>] [-workers n] [-admin-addr host:port]",
	Short:     "serve file systems to the zuf kernel module",
	Long: `
zus-server registers its file systems with the zuf kernel module and then
answers the kernel's mount and file system commands over ZT channels: one
mount channel, and one worker channel per CPU unless -workers says otherwise.

Configuration is read from the YAML file given by -config, then from ZUS_*
environment variables (ZUS_ZUF_ROOT, ZUS_WORKERS, ZUS_STRICT,
ZUS_ADMIN_ADDR, ZUS_FILESYSTEMS, ZUS_FOOFS_INDEX_PATH), and finally from the
flags set on the command line.

The admin address serves /metrics and a small RPC service listing the
registered file systems and the active mounts; see 'mount-status'.
    `,
}

func zusServerCmdRun(cmd *cli.Command, args []string) error {
	var (
		flags   configFlags
		logOpts log.Options
	)
	flags.register(&cmd.FlagSet)
	logOpts.Register(&cmd.FlagSet)
	if err := cmd.FlagSet.Parse(args); err != nil {
		return cli.CmdParseError(err)
	}

	logger := logOpts.Build()

	cfg, err := loadConfig(flags.path)
	if err != nil {
		logger.Errorf("load config: %v", err)
		return err
	}
	flags.apply(&cmd.FlagSet, &cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wait, shutdown, err := Start(ctx, logger, cfg)
	if err != nil {
		logger.Errorf("start: %v", err)
		return err
	}

	err = wait()
	shutdown()
	return err
}

// Start registers the configured file systems with the kernel and serves
// them until ctx is done or a channel fails. wait blocks until then and
// returns the failure, if any; shutdown releases what Start opened.
func Start(ctx context.Context, logger *log.Logger, cfg Config) (wait func() error, shutdown func(), err error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	var closers []io.Closer
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Debugf("close: %v", err)
			}
		}
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	reg, opened, err := buildModules(logger, cfg, kernelSubmitters(cfg.ZufRoot))
	closers = append(closers, opened...)
	if err != nil {
		return nil, nil, err
	}

	// The registration file stays open for as long as we serve; the kernel
	// forgets our file systems when it is closed.
	conn, err := zufs.OpenTmp(cfg.ZufRoot)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, conn)
	if err := registerAll(logger, conn, reg); err != nil {
		return nil, nil, err
	}

	mountCh, err := zufs.OpenMountChan(cfg.ZufRoot)
	if err != nil {
		return nil, nil, err
	}
	workers := make([]zus.Channel, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		ch, err := zufs.OpenWorkerChan(cfg.ZufRoot, uint32(i))
		if err != nil {
			mountCh.Close()
			for _, w := range workers {
				w.Close()
			}
			return nil, nil, err
		}
		workers = append(workers, ch)
	}

	metrics := zus.NewMetrics()
	mounts := zus.NewMountTable()
	lifecycle := zus.NewLifecycle(logger, reg, mounts, pmem.ZufRoot{Path: cfg.ZufRoot}, metrics)
	dispatcher := zus.NewDispatcher(logger, mounts, metrics, zus.Strict(cfg.Strict))
	server := zus.NewServer(logger, lifecycle, dispatcher)

	ctx, cancel := context.WithCancel(ctx)

	waitAdmin, shutdownAdmin := func() {}, func() {}
	if cfg.AdminAddr != "" {
		waitAdmin, shutdownAdmin, err = admin.Start(logger, cfg.AdminAddr, admin.Source{Modules: reg, Mounts: mounts}, metrics.Registry)
		if err != nil {
			cancel()
			mountCh.Close()
			for _, w := range workers {
				w.Close()
			}
			return nil, nil, err
		}
	}

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		logger.Infof("serving %d workers on %s", len(workers), cfg.ZufRoot)
		if serveErr = server.Serve(ctx, mountCh, workers); serveErr != nil {
			logger.Errorf("serve: %v", serveErr)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()
		shutdownAdmin()
		waitAdmin()
	}()

	wait = func() error {
		wg.Wait()
		return serveErr
	}
	shutdown = func() {
		cancel()
		release()
	}
	return wait, shutdown, nil
}
