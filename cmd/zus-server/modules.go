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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/kurafs/zus/pkg/foofs"
	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
)

// buildModules registers the configured file systems. Whatever they hold
// open (databases) is appended to closers.
func buildModules(logger *log.Logger, cfg Config, submitters foofs.SubmitterOpener) (*zus.Registry, []io.Closer, error) {
	reg := zus.NewRegistry()
	var closers []io.Closer
	for _, name := range cfg.Filesystems {
		switch strings.TrimSpace(name) {
		case "foofs":
			fcfg := foofs.Config{Submitters: submitters}
			if path := cfg.Foofs.IndexPath; path != "" {
				if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
					return nil, closers, err
				}
				db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
				if err != nil {
					return nil, closers, fmt.Errorf("open foofs index %s: %w", path, err)
				}
				closers = append(closers, db)
				fcfg.Indexes = foofs.BoltIndexes(db)
			}
			if _, err := reg.Register(foofs.Capabilities, foofs.New(logger, fcfg)); err != nil {
				return nil, closers, err
			}
		default:
			return nil, closers, fmt.Errorf("unknown file system %q", name)
		}
	}
	return reg, closers, nil
}

// kernelSubmitters opens an IO-map executor on the zuf root for every
// mount.
func kernelSubmitters(root string) foofs.SubmitterOpener {
	return func(sbi *zus.SbInfo) (foofs.Submitter, error) {
		ex, err := zufs.OpenIomapExecutor(root, sbi.KernSbID, uint64(sbi.ID))
		if err != nil {
			return nil, err
		}
		return ex, nil
	}
}

// registerAll announces every module to the kernel over conn.
func registerAll(logger *log.Logger, conn *zufs.Conn, reg *zus.Registry) error {
	for _, m := range reg.Modules() {
		r, err := zufs.NewRegisterFS(m.Caps.Name, m.Caps.Magic, uint32(m.ID), m.Caps.Version, uint32(m.Caps.UserPageSize))
		if err != nil {
			return err
		}
		if err := conn.RegisterFS(r); err != nil {
			return err
		}
		logger.Infof("registered %s as file system %d", m.Caps.Name, m.ID)
	}
	return nil
}
