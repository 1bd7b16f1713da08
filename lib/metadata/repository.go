/*
Copyright 2025 The Fedlet Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metadata

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/utils"
)

// Well known file names inside a configuration directory.
const (
	spMetadataFile = "sp.xml"
	spExtendedFile = "sp-extended.xml"

	extendedSuffix = "-extended.xml"
	metadataSuffix = ".xml"
	cotSuffix      = ".cot"
)

var metadataReloads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: fedlet.MetricMetadataReloads,
		Help: "Number of configuration directory reloads by result",
	},
	[]string{"result"},
)

// LoadDirectory builds a store from a configuration directory. The
// directory holds sp.xml and sp-extended.xml for the hosted SP, one
// <name>.xml plus optional <name>-extended.xml per remote IdP, and any
// number of *.cot circle-of-trust files.
func LoadDirectory(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "reading configuration directory %v", dir).WithCause(err))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var config StoreConfig
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "reading %v", name).WithCause(err))
		}
		switch {
		case name == spMetadataFile:
			config.SPMetadata = raw
		case name == spExtendedFile:
			config.SPExtended = raw
		case strings.HasSuffix(name, extendedSuffix):
			config.IDPExtended = append(config.IDPExtended, raw)
		case strings.HasSuffix(name, metadataSuffix):
			config.IDPMetadata = append(config.IDPMetadata, raw)
		case strings.HasSuffix(name, cotSuffix):
			config.CirclesOfTrust = append(config.CirclesOfTrust, raw)
		}
	}
	store, err := NewStore(config)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return store, nil
}

// RepositoryConfig configures a Repository.
type RepositoryConfig struct {
	// Dir is the configuration directory to load and watch.
	Dir string
	// Logger emits reload events. Defaults to the metadata component
	// logger.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *RepositoryConfig) CheckAndSetDefaults() error {
	if c.Dir == "" {
		return trace.BadParameter("missing parameter Dir")
	}
	if c.Logger == nil {
		c.Logger = slog.With(fedlet.ComponentKey, fedlet.ComponentMetadata)
	}
	return nil
}

// Repository watches a configuration directory and serves the latest
// successfully loaded snapshot. A directory change that fails to load
// keeps the previous snapshot in place.
type Repository struct {
	cfg     RepositoryConfig
	current atomic.Pointer[Store]
	watcher *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

// NewRepository loads the directory and starts watching it. The initial
// load must succeed.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(metadataReloads); err != nil {
		return nil, trace.Wrap(err)
	}
	store, err := LoadDirectory(cfg.Dir)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := watcher.Add(cfg.Dir); err != nil {
		watcher.Close()
		return nil, trace.Wrap(err)
	}
	repository := &Repository{
		cfg:     cfg,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	repository.current.Store(store)
	go repository.watch()
	return repository, nil
}

// Snapshot returns the current store.
func (r *Repository) Snapshot() *Store {
	return r.current.Load()
}

// Close stops watching. It is safe to call more than once.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.watcher.Close()
	})
	return trace.Wrap(err)
}

func (r *Repository) watch() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if r.relevant(event) {
				r.reload(event)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.cfg.Logger.WarnContext(context.Background(), "Configuration directory watch error.", "error", err)
		case <-r.done:
			return
		}
	}
}

func (r *Repository) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return strings.HasSuffix(name, metadataSuffix) || strings.HasSuffix(name, cotSuffix)
}

func (r *Repository) reload(event fsnotify.Event) {
	ctx := context.Background()
	store, err := LoadDirectory(r.cfg.Dir)
	if err != nil {
		metadataReloads.WithLabelValues("error").Inc()
		r.cfg.Logger.ErrorContext(ctx, "Failed to reload configuration directory, keeping previous snapshot.",
			"dir", r.cfg.Dir, "event", event.Name, "error", err)
		return
	}
	r.current.Store(store)
	metadataReloads.WithLabelValues("ok").Inc()
	r.cfg.Logger.InfoContext(ctx, "Reloaded configuration directory.", "dir", r.cfg.Dir, "event", event.Name)
}
