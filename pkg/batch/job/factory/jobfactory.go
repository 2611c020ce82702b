package factory

import (
	"fmt"

	config "moviebatch/pkg/batch/config"
	component "moviebatch/pkg/batch/job/component"
	core "moviebatch/pkg/batch/job/core"
	jsl "moviebatch/pkg/batch/job/jsl"
	"moviebatch/pkg/batch/job/runner"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// JobBuilder は、特定の Job を生成するための関数型です。
// 依存関係 (jobRepository, config, listeners, flow) を受け取り、生成された core.Job とエラーを返します。
type JobBuilder func(
	jobRepository job.JobRepository,
	cfg *config.Config,
	listeners []core.JobExecutionListener,
	flow *core.FlowDefinition,
) (core.Job, error)

// JobFactory は JSL 定義と登録済みビルダーから Job オブジェクトを生成するファクトリです。
type JobFactory struct {
	*component.Registry

	config        *config.Config
	jobRepository job.JobRepository
	definitions   jsl.Definitions
	jobBuilders   map[string]JobBuilder
}

// NewJobFactory は新しい JobFactory のインスタンスを作成します。
func NewJobFactory(cfg *config.Config, repo job.JobRepository) *JobFactory {
	return &JobFactory{
		Registry:      component.NewRegistry(),
		config:        cfg,
		jobRepository: repo,
		definitions:   make(jsl.Definitions),
		jobBuilders:   make(map[string]JobBuilder),
	}
}

// LoadJSL は JSL YAML をロードしてジョブ定義を登録します。
func (f *JobFactory) LoadJSL(data []byte) error {
	return f.definitions.LoadFromBytes(data)
}

// RegisterJobBuilder は、指定された名前でジョブビルド関数を登録します。
// ビルダーが未登録のジョブは FlowJob として構築されます。
func (f *JobFactory) RegisterJobBuilder(name string, builder JobBuilder) {
	f.jobBuilders[name] = builder
	logger.Debugf("JobFactory: ジョブビルダー '%s' を登録しました。", name)
}

// JobNames はロード済みのジョブ定義の ID を返します。
func (f *JobFactory) JobNames() []string {
	names := make([]string, 0, len(f.definitions))
	for id := range f.definitions {
		names = append(names, id)
	}
	return names
}

// CreateJob は指定されたジョブ名の core.Job オブジェクトを作成します。
func (f *JobFactory) CreateJob(jobName string) (core.Job, error) {
	logger.Debugf("JobFactory で Job '%s' の作成を試みます。", jobName)

	jslJob, ok := f.definitions.Get(jobName)
	if !ok {
		return nil, exception.NewBatchErrorf("job_factory", "指定された Job '%s' のJSL定義が見つかりません", jobName)
	}

	coreFlow, err := jsl.ConvertJSLToCoreFlow(jslJob.Flow, f.Registry, f.jobRepository, f.config)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", fmt.Sprintf("JSL ジョブ '%s' のフロー変換に失敗しました", jobName), err, false, false)
	}

	var jobListeners []core.JobExecutionListener
	for _, ref := range jslJob.Listeners {
		builder, found := f.JobListenerBuilder(ref.Ref)
		if !found {
			return nil, exception.NewBatchErrorf("job_factory", "JobExecutionListener '%s' のビルダーが登録されていません", ref.Ref)
		}
		l, err := builder(f.config)
		if err != nil {
			return nil, exception.NewBatchError("job_factory", fmt.Sprintf("JobExecutionListener '%s' のビルドに失敗しました", ref.Ref), err, false, false)
		}
		jobListeners = append(jobListeners, l)
	}

	builder, found := f.jobBuilders[jobName]
	if !found {
		return runner.NewFlowJob(jslJob.ID, jslJob.Name, coreFlow, f.jobRepository, jobListeners), nil
	}
	batchJob, err := builder(f.jobRepository, f.config, jobListeners, coreFlow)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", fmt.Sprintf("ジョブ '%s' のインスタンス化に失敗しました", jobName), err, false, false)
	}
	logger.Debugf("Job '%s' を JSL 定義から構築しました。", jobName)
	return batchJob, nil
}

// GetJobParametersIncrementer は指定されたジョブの JobParametersIncrementer を構築して返します。
// JSL に incrementer が無い場合は nil を返します。
func (f *JobFactory) GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error) {
	jslJob, ok := f.definitions.Get(jobName)
	if !ok || jslJob.Incrementer.Ref == "" {
		return nil, nil
	}
	builder, found := f.JobParametersIncrementerBuilder(jslJob.Incrementer.Ref)
	if !found {
		return nil, exception.NewBatchErrorf("job_factory", "JobParametersIncrementer '%s' のビルダーが登録されていません", jslJob.Incrementer.Ref)
	}
	inc, err := builder(f.config, jslJob.Incrementer.Properties)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", fmt.Sprintf("JobParametersIncrementer '%s' のビルドに失敗しました", jslJob.Incrementer.Ref), err, false, false)
	}
	return inc, nil
}
