package runner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// FlowJob は FlowDefinition に従って Step / Decision / Split を実行する core.Job の実装です。
type FlowJob struct {
	id            string
	name          string
	flow          *core.FlowDefinition
	jobRepository job.JobRepository
	jobListeners  []core.JobExecutionListener
}

var _ core.Job = (*FlowJob)(nil)

// NewFlowJob は新しい FlowJob のインスタンスを作成します。
func NewFlowJob(
	id string,
	name string,
	flow *core.FlowDefinition,
	jobRepository job.JobRepository,
	jobListeners []core.JobExecutionListener,
) *FlowJob {
	return &FlowJob{
		id:            id,
		name:          name,
		flow:          flow,
		jobRepository: jobRepository,
		jobListeners:  jobListeners,
	}
}

// JobID はジョブのIDを返します。
func (j *FlowJob) JobID() string {
	return j.id
}

// JobName はジョブ名を返します。
func (j *FlowJob) JobName() string {
	return j.name
}

// GetFlow はジョブのフロー定義を返します。
func (j *FlowJob) GetFlow() *core.FlowDefinition {
	return j.flow
}

// ValidateParameters はジョブパラメータを検証します。
// フロー定義が壊れている場合もここで検出します。
func (j *FlowJob) ValidateParameters(params core.JobParameters) error {
	if j.flow == nil {
		return exception.NewBatchErrorf(j.name, "ジョブ '%s' にフローが定義されていません", j.name)
	}
	if _, ok := j.flow.GetElement(j.flow.StartElement); !ok {
		return exception.NewBatchErrorf(j.name, "開始要素 '%s' がフローに見つかりません", j.flow.StartElement)
	}
	return nil
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run はフローの開始要素から遷移ルールをたどってジョブを実行します。
// 戻り値はジョブが FAILED / STOPPED で終わった場合の原因です。
func (j *FlowJob) Run(ctx context.Context, jobExecution *core.JobExecution, jobParameters core.JobParameters) error {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)

	j.notifyBeforeJob(ctx, jobExecution)

	jobExecution.MarkAsStarted()
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("ジョブ '%s': JobExecution の Started 更新に失敗しました: %v", j.name, err)
	}

	runErr := j.runFlow(ctx, jobExecution, jobParameters)

	j.notifyAfterJob(context.WithoutCancel(ctx), jobExecution)

	logger.Infof("ジョブ '%s' (Execution ID: %s) が終了しました。ステータス: %s, 終了ステータス: %s",
		j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	return runErr
}

func (j *FlowJob) runFlow(ctx context.Context, jobExecution *core.JobExecution, jobParameters core.JobParameters) error {
	currentID := j.flow.StartElement

	for {
		if err := ctx.Err(); err != nil {
			logger.Warnf("ジョブ '%s': Context がキャンセルされたため実行を中断します: %v", j.name, err)
			jobExecution.AddFailureException(err)
			jobExecution.MarkAsStopped()
			return err
		}

		element, ok := j.flow.GetElement(currentID)
		if !ok {
			err := exception.NewBatchErrorf(j.name, "フロー要素 '%s' が見つかりません", currentID)
			jobExecution.MarkAsFailed(err)
			return err
		}

		exitStatus, elemErr := j.executeElement(ctx, jobExecution, jobParameters, element)
		j.updateJobExecution(ctx, jobExecution)

		if elemErr != nil {
			logger.Errorf("ジョブ '%s': フロー要素 '%s' でエラーが発生しました: %v", j.name, currentID, elemErr)
			if ctx.Err() != nil || errors.Is(elemErr, context.Canceled) {
				jobExecution.AddFailureException(elemErr)
				jobExecution.MarkAsStopped()
				return elemErr
			}
		}

		transition, found := j.flow.FindTransition(currentID, exitStatus, elemErr != nil)
		if !found {
			if elemErr != nil {
				jobExecution.MarkAsFailed(elemErr)
				return elemErr
			}
			if j.hasRules(currentID) {
				err := exception.NewBatchErrorf(j.name, "フロー要素 '%s' の終了ステータス '%s' に一致する遷移ルールがありません", currentID, exitStatus)
				jobExecution.MarkAsFailed(err)
				return err
			}
			logger.Debugf("ジョブ '%s': フロー要素 '%s' に遷移ルールがないためフローを終了します。", j.name, currentID)
			jobExecution.MarkAsCompleted()
			return nil
		}

		switch {
		case transition.End:
			if elemErr != nil {
				jobExecution.MarkAsFailed(elemErr)
				return elemErr
			}
			logger.Debugf("ジョブ '%s': '%s' から end 遷移しました。", j.name, currentID)
			jobExecution.MarkAsCompleted()
			return nil
		case transition.Fail:
			err := elemErr
			if err == nil {
				err = exception.NewBatchErrorf(j.name, "フロー要素 '%s' から fail 遷移しました (終了ステータス: %s)", currentID, exitStatus)
			}
			jobExecution.MarkAsFailed(err)
			return err
		case transition.Stop:
			logger.Infof("ジョブ '%s': '%s' から stop 遷移しました。", j.name, currentID)
			jobExecution.MarkAsStopped()
			return elemErr
		case transition.To != "":
			if elemErr != nil {
				// 失敗を明示的に扱う遷移なので、エラーは記録だけして次へ進む
				jobExecution.AddFailureException(elemErr)
			}
			currentID = transition.To
		default:
			err := exception.NewBatchErrorf(j.name, "フロー要素 '%s' の遷移ルールに遷移先がありません", currentID)
			jobExecution.MarkAsFailed(err)
			return err
		}
	}
}

func (j *FlowJob) hasRules(from string) bool {
	for _, r := range j.flow.TransitionRules {
		if r.From == from {
			return true
		}
	}
	return false
}

func (j *FlowJob) updateJobExecution(ctx context.Context, jobExecution *core.JobExecution) {
	if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("ジョブ '%s': JobExecution (ID: %s) の更新に失敗しました: %v", j.name, jobExecution.ID, err)
	}
}

func (j *FlowJob) executeElement(ctx context.Context, jobExecution *core.JobExecution, jobParameters core.JobParameters, element core.FlowElement) (core.ExitStatus, error) {
	switch elem := element.(type) {
	case core.Step:
		return j.executeStep(ctx, jobExecution, elem, false)
	case core.Decision:
		status, err := elem.Decide(ctx, jobExecution, jobParameters)
		if err != nil {
			return core.ExitStatusFailed, exception.NewBatchError(j.name, fmt.Sprintf("Decision '%s' の評価に失敗しました", elem.DecisionName()), err, false, false)
		}
		logger.Infof("ジョブ '%s': Decision '%s' の結果: %s", j.name, elem.DecisionName(), status)
		return status, nil
	case core.Split:
		return j.executeSplit(ctx, jobExecution, elem)
	default:
		return core.ExitStatusFailed, exception.NewBatchErrorf(j.name, "不明なフロー要素の型です: %T (ID: %s)", element, element.ID())
	}
}

// executeStep は StepExecution を用意してステップを実行します。
// 前回の実行で COMPLETED になったステップは再実行しません。
func (j *FlowJob) executeStep(ctx context.Context, jobExecution *core.JobExecution, s core.Step, inSplit bool) (core.ExitStatus, error) {
	stepName := s.StepName()
	if !inSplit {
		jobExecution.CurrentStepName = stepName
	}

	var previous *core.StepExecution
	if jobExecution.PreviousExecution != nil {
		if prev, ok := jobExecution.PreviousExecution.GetStepExecution(stepName); ok {
			previous = prev
		}
	}
	if previous != nil && previous.Status == core.BatchStatusCompleted {
		logger.Infof("ジョブ '%s': ステップ '%s' は前回の実行で完了しているためスキップします。", j.name, stepName)
		return previous.ExitStatus, nil
	}

	stepExecution := core.NewStepExecution(stepName, jobExecution)
	if previous != nil {
		stepExecution.ExecutionContext = previous.ExecutionContext.Copy()
		logger.Infof("ジョブ '%s': ステップ '%s' を前回の ExecutionContext から再開します。", j.name, stepName)
	}
	jobExecution.AddStepExecution(stepExecution)

	if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return core.ExitStatusFailed, exception.NewBatchError(j.name, fmt.Sprintf("ステップ '%s' の StepExecution の保存に失敗しました", stepName), err, false, false)
	}

	if err := s.Execute(ctx, jobExecution, stepExecution); err != nil {
		return stepExecution.ExitStatus, err
	}
	return stepExecution.ExitStatus, nil
}

// executeSplit は Split 内のステップを並行に実行します。
// 一つでも失敗した場合、残りのステップの Context はキャンセルされます。
func (j *FlowJob) executeSplit(ctx context.Context, jobExecution *core.JobExecution, split core.Split) (core.ExitStatus, error) {
	logger.Infof("ジョブ '%s': Split '%s' を実行します。並列ステップ数: %d", j.name, split.ID(), len(split.Steps()))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range split.Steps() {
		s := s
		g.Go(func() error {
			_, err := j.executeStep(gctx, jobExecution, s, true)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return core.ExitStatusFailed, exception.NewBatchError(j.name, fmt.Sprintf("Split '%s' の実行に失敗しました", split.ID()), err, false, false)
	}
	return core.ExitStatusCompleted, nil
}
