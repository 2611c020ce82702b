package job

import (
	"net/url"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/job/runner"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
)

// JobName は JSL に定義された映画ジョブの ID です。
const JobName = "movieJob"

// MovieJob は映画データセットを CSV に変換するジョブです。
// フローの実行は FlowJob に任せ、起動前の検証だけを追加します。
type MovieJob struct {
	*runner.FlowJob
	config *config.Config
}

var _ core.Job = (*MovieJob)(nil)

// NewMovieJob は factory.JobBuilder のシグネチャに合わせた MovieJob のコンストラクタです。
func NewMovieJob(
	jobRepository job.JobRepository,
	cfg *config.Config,
	listeners []core.JobExecutionListener,
	flow *core.FlowDefinition,
) *MovieJob {
	return &MovieJob{
		FlowJob: runner.NewFlowJob(JobName, JobName, flow, jobRepository, listeners),
		config:  cfg,
	}
}

// ValidateParameters はフロー定義に加えて、データセットの URL と出力先が設定されていることを検証します。
func (j *MovieJob) ValidateParameters(params core.JobParameters) error {
	if err := j.FlowJob.ValidateParameters(params); err != nil {
		return err
	}
	u, err := url.Parse(j.config.Batch.APIEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return exception.NewBatchErrorf("movie_job", "batch.api_endpoint '%s' は HTTP(S) の URL ではありません", j.config.Batch.APIEndpoint)
	}
	if j.config.Batch.OutputPath == "" {
		return exception.NewBatchErrorf("movie_job", "batch.output_path が設定されていません")
	}
	return nil
}
