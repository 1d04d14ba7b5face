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
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override, e.g. ZUS_WORKERS.
const envPrefix = "zus"

// Config is the server configuration. Values are layered: defaults, then
// the YAML file, then ZUS_* environment variables, then flags given on the
// command line.
type Config struct {
	// ZufRoot is the mount point of the kernel's zuf root file system.
	ZufRoot string `yaml:"zuf_root" envconfig:"ZUF_ROOT"`

	// Workers is the number of worker channels; one per CPU by default.
	Workers int `yaml:"workers" envconfig:"WORKERS"`

	// Strict answers unknown operation codes with ENOSYS instead of
	// success.
	Strict bool `yaml:"strict" envconfig:"STRICT"`

	// AdminAddr is where the admin endpoints listen; empty disables them.
	AdminAddr string `yaml:"admin_addr" envconfig:"ADMIN_ADDR"`

	// Filesystems names the compiled-in file systems to register.
	Filesystems []string `yaml:"filesystems" envconfig:"FILESYSTEMS"`

	Foofs FoofsConfig `yaml:"foofs" envconfig:"FOOFS"`
}

type FoofsConfig struct {
	// IndexPath is the bolt database holding foofs directory indexes. When
	// empty the indexes live in memory and regions are formatted on every
	// mount.
	IndexPath string `yaml:"index_path" envconfig:"INDEX_PATH"`
}

func defaultConfig() Config {
	return Config{
		ZufRoot:     "/sys/fs/zuf",
		Workers:     runtime.NumCPU(),
		Strict:      true,
		AdminAddr:   "127.0.0.1:10880",
		Filesystems: []string{"foofs"},
	}
}

// loadConfig layers the file at path (if any) and the environment over the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configFlags are the command-line overrides. Only flags that were set on
// the command line are applied.
type configFlags struct {
	path        string
	zufRoot     string
	workers     int
	strict      bool
	adminAddr   string
	filesystems string
	indexPath   string
}

func (f *configFlags) register(fs *flag.FlagSet) {
	def := defaultConfig()
	fs.StringVar(&f.path, "config", "", "YAML configuration file")
	fs.StringVar(&f.zufRoot, "zuf-root", def.ZufRoot, "Mount point of the zuf root file system")
	fs.IntVar(&f.workers, "workers", def.Workers, "Number of worker channels")
	fs.BoolVar(&f.strict, "strict", def.Strict, "Answer unknown operations with ENOSYS")
	fs.StringVar(&f.adminAddr, "admin-addr", def.AdminAddr, "Admin endpoint address [host:port], empty to disable")
	fs.StringVar(&f.filesystems, "filesystems", strings.Join(def.Filesystems, ","), "Comma-separated file systems to register")
	fs.StringVar(&f.indexPath, "foofs-index", "", "Bolt database for persistent foofs indexes")
}

func (f *configFlags) apply(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "zuf-root":
			cfg.ZufRoot = f.zufRoot
		case "workers":
			cfg.Workers = f.workers
		case "strict":
			cfg.Strict = f.strict
		case "admin-addr":
			cfg.AdminAddr = f.adminAddr
		case "filesystems":
			cfg.Filesystems = strings.Split(f.filesystems, ",")
		case "foofs-index":
			cfg.Foofs.IndexPath = f.indexPath
		}
	})
}

func (c Config) validate() error {
	if c.ZufRoot == "" {
		return errors.New("zuf root not set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("need at least one worker, have %d", c.Workers)
	}
	if len(c.Filesystems) == 0 {
		return errors.New("no file systems to register")
	}
	return nil
}
