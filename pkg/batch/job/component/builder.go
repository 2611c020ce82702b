package component

import (
	"sync"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	logger "moviebatch/pkg/batch/util/logger"
)

// ComponentBuilder は、特定のコンポーネント（Reader, Processor, Writer, Tasklet, Decision）を生成するための関数型です。
// 依存関係 (config, repo, properties) を受け取り、生成されたコンポーネントとエラーを返します。
// ジェネリックインターフェースを返すため、any を使用します。
type ComponentBuilder func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error)

// StepExecutionListenerBuilder は StepExecutionListener を生成するための関数型です。
type StepExecutionListenerBuilder func(cfg *config.Config) (core.StepExecutionListener, error)

// ChunkListenerBuilder は ChunkListener を生成するための関数型です。
type ChunkListenerBuilder func(cfg *config.Config) (core.ChunkListener, error)

// ItemReadListenerBuilder は ItemReadListener を生成するための関数型です。
type ItemReadListenerBuilder func(cfg *config.Config) (core.ItemReadListener, error)

// ItemProcessListenerBuilder は ItemProcessListener を生成するための関数型です。
type ItemProcessListenerBuilder func(cfg *config.Config) (core.ItemProcessListener, error)

// ItemWriteListenerBuilder は ItemWriteListener を生成するための関数型です。
type ItemWriteListenerBuilder func(cfg *config.Config) (core.ItemWriteListener, error)

// SkipListenerBuilder は SkipListener を生成するための関数型です。
type SkipListenerBuilder func(cfg *config.Config) (core.SkipListener, error)

// RetryItemListenerBuilder は RetryItemListener を生成するための関数型です。
type RetryItemListenerBuilder func(cfg *config.Config) (core.RetryItemListener, error)

// JobListenerBuilder は JobExecutionListener を生成するための関数型です。
type JobListenerBuilder func(cfg *config.Config) (core.JobExecutionListener, error)

// JobParametersIncrementerBuilder は JobParametersIncrementer を生成するための関数型です。
type JobParametersIncrementerBuilder func(cfg *config.Config, properties map[string]string) (core.JobParametersIncrementer, error)

// Registry は名前付きのビルダーを種類ごとに保持します。
// JSL の ref はこの Registry に登録された名前で解決されます。
type Registry struct {
	mu sync.RWMutex

	components     map[string]ComponentBuilder
	stepListeners  map[string]StepExecutionListenerBuilder
	chunkListeners map[string]ChunkListenerBuilder
	itemRead       map[string]ItemReadListenerBuilder
	itemProcess    map[string]ItemProcessListenerBuilder
	itemWrite      map[string]ItemWriteListenerBuilder
	skip           map[string]SkipListenerBuilder
	retryItem      map[string]RetryItemListenerBuilder
	jobListeners   map[string]JobListenerBuilder
	incrementers   map[string]JobParametersIncrementerBuilder
}

// NewRegistry は空の Registry を作成します。
func NewRegistry() *Registry {
	return &Registry{
		components:     make(map[string]ComponentBuilder),
		stepListeners:  make(map[string]StepExecutionListenerBuilder),
		chunkListeners: make(map[string]ChunkListenerBuilder),
		itemRead:       make(map[string]ItemReadListenerBuilder),
		itemProcess:    make(map[string]ItemProcessListenerBuilder),
		itemWrite:      make(map[string]ItemWriteListenerBuilder),
		skip:           make(map[string]SkipListenerBuilder),
		retryItem:      make(map[string]RetryItemListenerBuilder),
		jobListeners:   make(map[string]JobListenerBuilder),
		incrementers:   make(map[string]JobParametersIncrementerBuilder),
	}
}

func register[B any](r *Registry, m map[string]B, kind, name string, b B) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = b
	logger.Debugf("Registry: %s ビルダー '%s' を登録しました。", kind, name)
}

func lookup[B any](r *Registry, m map[string]B, name string) (B, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := m[name]
	return b, ok
}

func (r *Registry) RegisterComponentBuilder(name string, b ComponentBuilder) {
	register(r, r.components, "Component", name, b)
}

func (r *Registry) RegisterStepExecutionListenerBuilder(name string, b StepExecutionListenerBuilder) {
	register(r, r.stepListeners, "StepExecutionListener", name, b)
}

func (r *Registry) RegisterChunkListenerBuilder(name string, b ChunkListenerBuilder) {
	register(r, r.chunkListeners, "ChunkListener", name, b)
}

func (r *Registry) RegisterItemReadListenerBuilder(name string, b ItemReadListenerBuilder) {
	register(r, r.itemRead, "ItemReadListener", name, b)
}

func (r *Registry) RegisterItemProcessListenerBuilder(name string, b ItemProcessListenerBuilder) {
	register(r, r.itemProcess, "ItemProcessListener", name, b)
}

func (r *Registry) RegisterItemWriteListenerBuilder(name string, b ItemWriteListenerBuilder) {
	register(r, r.itemWrite, "ItemWriteListener", name, b)
}

func (r *Registry) RegisterSkipListenerBuilder(name string, b SkipListenerBuilder) {
	register(r, r.skip, "SkipListener", name, b)
}

func (r *Registry) RegisterRetryItemListenerBuilder(name string, b RetryItemListenerBuilder) {
	register(r, r.retryItem, "RetryItemListener", name, b)
}

func (r *Registry) RegisterJobListenerBuilder(name string, b JobListenerBuilder) {
	register(r, r.jobListeners, "JobExecutionListener", name, b)
}

func (r *Registry) RegisterJobParametersIncrementerBuilder(name string, b JobParametersIncrementerBuilder) {
	register(r, r.incrementers, "JobParametersIncrementer", name, b)
}

func (r *Registry) ComponentBuilder(name string) (ComponentBuilder, bool) {
	return lookup(r, r.components, name)
}

func (r *Registry) StepExecutionListenerBuilder(name string) (StepExecutionListenerBuilder, bool) {
	return lookup(r, r.stepListeners, name)
}

func (r *Registry) ChunkListenerBuilder(name string) (ChunkListenerBuilder, bool) {
	return lookup(r, r.chunkListeners, name)
}

func (r *Registry) ItemReadListenerBuilder(name string) (ItemReadListenerBuilder, bool) {
	return lookup(r, r.itemRead, name)
}

func (r *Registry) ItemProcessListenerBuilder(name string) (ItemProcessListenerBuilder, bool) {
	return lookup(r, r.itemProcess, name)
}

func (r *Registry) ItemWriteListenerBuilder(name string) (ItemWriteListenerBuilder, bool) {
	return lookup(r, r.itemWrite, name)
}

func (r *Registry) SkipListenerBuilder(name string) (SkipListenerBuilder, bool) {
	return lookup(r, r.skip, name)
}

func (r *Registry) RetryItemListenerBuilder(name string) (RetryItemListenerBuilder, bool) {
	return lookup(r, r.retryItem, name)
}

func (r *Registry) JobListenerBuilder(name string) (JobListenerBuilder, bool) {
	return lookup(r, r.jobListeners, name)
}

func (r *Registry) JobParametersIncrementerBuilder(name string) (JobParametersIncrementerBuilder, bool) {
	return lookup(r, r.incrementers, name)
}
