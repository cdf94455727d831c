package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"codeqa/pkg/agent"
	llmmetrics "codeqa/pkg/agent/middleware/metrics"
	"codeqa/pkg/config"
	"codeqa/pkg/index/local"
	"codeqa/pkg/index/pathway"
	"codeqa/pkg/logx"
	"codeqa/pkg/metrics"
	"codeqa/pkg/retrieval"
)

// runtime is the wired answer pipeline for one process.
type runtime struct {
	registry *prometheus.Registry
	usage    *llmmetrics.InternalRecorder
	index    retrieval.IndexClient
	local    *local.Index
	// indexName is reported by /health.
	indexName string
	closers   []func() error
	logger    *logx.Logger
}

// newRuntime opens the index. embedded forces the in-process local index
// regardless of the configured backend.
func (a *app) newRuntime(ctx context.Context, embedded bool) (*runtime, error) {
	rt := &runtime{
		registry: prometheus.NewRegistry(),
		usage:    llmmetrics.NewInternalRecorder(),
		logger:   logx.NewLogger("runtime"),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if embedded || a.cfg.Index.Backend == config.IndexBackendLocal {
		idx, err := openLocalIndex(ctx, a.cfg.Index.Local, rt)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.index = idx
		rt.local = idx
		rt.indexName = "local:" + a.cfg.Index.Local.WatchFolder
		return rt, nil
	}

	timeout := time.Duration(a.cfg.Index.TimeoutSeconds) * time.Second
	client := pathway.NewClient(a.cfg.Index.URL, timeout)
	rt.index = client
	rt.indexName = client.BaseURL()
	return rt, nil
}

// openLocalIndex loads the local index, syncs the watch folder and starts
// the watcher when enabled. The watcher stops with ctx.
func openLocalIndex(ctx context.Context, cfg config.LocalIndexConfig, rt *runtime) (*local.Index, error) {
	if err := os.MkdirAll(cfg.WatchFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create watch folder: %w", err)
	}
	idx, store, err := local.Open(cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	if err := idx.Sync(ctx, cfg.WatchFolder); err != nil {
		return nil, fmt.Errorf("initial sync of %s: %w", cfg.WatchFolder, err)
	}
	if stats, err := idx.Stats(); err == nil {
		rt.logger.Info("📚 local index ready: %d files, %d chunks", stats.FileCount, stats.ChunkCount)
	}

	if cfg.Watch {
		watcher, err := local.NewWatcher(idx, cfg.WatchFolder)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Error("watcher stopped: %v", err)
			}
		}()
	}
	return idx, nil
}

// newAgent builds the generator and the agent on top of the runtime's index.
func (a *app) newAgent(rt *runtime) (*agent.Agent, error) {
	var (
		llmRecorder llmmetrics.Recorder = rt.usage
		recorder    agent.Recorder
	)
	if a.cfg.Metrics.Enabled {
		llmRecorder = llmmetrics.Multi(llmmetrics.NewPrometheusRecorder(rt.registry), rt.usage)
		recorder = metrics.NewPipelineRecorder(rt.registry)
	}

	generator, err := agent.NewGenerator(a.cfg, llmRecorder)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Options{
		Index:        rt.index,
		Generator:    generator,
		Recorder:     recorder,
		TopK:         a.cfg.Agent.TopK,
		ValidateJSON: a.cfg.Agent.ValidateJSON,
	})
}

// Close releases everything the runtime opened.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close: %v", err)
		}
	}
	rt.closers = nil
}
