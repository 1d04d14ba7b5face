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

package zus

import (
	"context"
	"fmt"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/zufs"
	"golang.org/x/sync/errgroup"
)

// A Channel delivers kernel commands. Wait publishes the reply left in buf
// and blocks until the next command has been written into it. Wait returns an
// error once the channel is closed; a kernel channel already blocked in Wait
// is released by the kernel with Break.
type Channel interface {
	Wait(buf []byte) error
	Close() error
}

var _ Channel = (*zufs.Chan)(nil)

// Server runs one loop per channel: the mount channel feeds the lifecycle,
// worker channels feed the dispatcher.
type Server struct {
	logger     *log.Logger
	lifecycle  *Lifecycle
	dispatcher *Dispatcher
}

func NewServer(logger *log.Logger, lifecycle *Lifecycle, dispatcher *Dispatcher) *Server {
	return &Server{
		logger:     logger,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
	}
}

// Serve runs until ctx is cancelled or a channel fails, and returns the
// first failure. A worker whose channel delivers Break stops on its own. All
// channels are closed before Serve returns.
func (s *Server) Serve(ctx context.Context, mount Channel, workers []Channel) error {
	g, gctx := errgroup.WithContext(ctx)

	chans := append([]Channel{mount}, workers...)
	stop := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-gctx.Done():
		case <-stop:
		}
		for _, ch := range chans {
			if err := ch.Close(); err != nil {
				s.logger.Debugf("close channel: %v", err)
			}
		}
	}()

	g.Go(func() error {
		return s.loop(gctx, mount, "mount", func(ctx context.Context, env zufs.Envelope) bool {
			s.lifecycle.Do(ctx, env)
			return true
		})
	})
	for i, w := range workers {
		w := w
		name := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return s.loop(gctx, w, name, func(ctx context.Context, env zufs.Envelope) bool {
				s.dispatcher.Do(ctx, env)
				return env.Operation() != zufs.OpBreak
			})
		})
	}

	err := g.Wait()
	close(stop)
	<-closed
	return err
}

func (s *Server) loop(ctx context.Context, ch Channel, name string, handle func(context.Context, zufs.Envelope) bool) error {
	buf := make([]byte, zufs.MaxEnvelope)
	env := zufs.Envelope(buf)
	env.Reset(0)

	s.logger.Debugf("%s: serving", name)
	for {
		if err := ch.Wait(buf); err != nil {
			if ctx.Err() != nil {
				s.logger.Debugf("%s: stopped", name)
				return nil
			}
			return fmt.Errorf("zus: %s: wait: %w", name, err)
		}
		if !handle(ctx, env) {
			s.logger.Debugf("%s: break", name)
			return nil
		}
	}
}
