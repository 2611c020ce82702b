package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moviebatch/pkg/batch/database"
	core "moviebatch/pkg/batch/job/core"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
	serialization "moviebatch/pkg/batch/util/serialization"
)

const executionColumns = `id, job_instance_id, job_name, job_parameters, start_time, end_time, status, exit_status, exit_code, failures, version, create_time, last_updated, execution_context, current_step_name`

// SQLJobExecutionRepository は JobExecution インターフェースの SQL データベース実装です。
type SQLJobExecutionRepository struct {
	dbConnection database.DBConnection
	stepRepo     *SQLStepExecutionRepository
}

// NewSQLJobExecutionRepository は新しい SQLJobExecutionRepository のインスタンスを作成します。
// StepExecution のロードには stepRepo を使用します。
func NewSQLJobExecutionRepository(dbConn database.DBConnection, stepRepo *SQLStepExecutionRepository) *SQLJobExecutionRepository {
	return &SQLJobExecutionRepository{dbConnection: dbConn, stepRepo: stepRepo}
}

type jobExecutionColumns struct {
	params   string
	failures string
	context  string
}

func encodeJobExecution(je *core.JobExecution) (jobExecutionColumns, error) {
	params, err := serialization.MarshalJobParameters(je.Parameters)
	if err != nil {
		return jobExecutionColumns{}, err
	}
	failures, err := serialization.MarshalFailures(je.Failures)
	if err != nil {
		return jobExecutionColumns{}, err
	}
	ec, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return jobExecutionColumns{}, err
	}
	return jobExecutionColumns{params: string(params), failures: string(failures), context: string(ec)}, nil
}

// SaveJobExecution は新しい JobExecution をデータベースに保存します。
func (r *SQLJobExecutionRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	cols, err := encodeJobExecution(jobExecution)
	if err != nil {
		return exception.NewBatchError(module, "JobExecution のシリアライズに失敗しました", err, false, false)
	}
	query := `INSERT INTO job_executions (` + executionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.dbConnection.ExecContext(ctx, query,
		jobExecution.ID,
		jobExecution.JobInstanceID,
		jobExecution.JobName,
		cols.params,
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		jobExecution.ExitCode,
		cols.failures,
		jobExecution.Version,
		jobExecution.CreateTime.UTC(),
		jobExecution.LastUpdated.UTC(),
		cols.context,
		jobExecution.CurrentStepName,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の保存に失敗しました", jobExecution.ID), err, false, false)
	}
	logger.Debugf("JobExecution (ID: %s) を保存しました。", jobExecution.ID)
	return nil
}

// UpdateJobExecution は既存の JobExecution の状態を更新します。
func (r *SQLJobExecutionRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	cols, err := encodeJobExecution(jobExecution)
	if err != nil {
		return exception.NewBatchError(module, "JobExecution のシリアライズに失敗しました", err, false, false)
	}
	query := `
    UPDATE job_executions
    SET start_time = ?, end_time = ?, status = ?, exit_status = ?, exit_code = ?, failures = ?,
        version = ?, last_updated = ?, execution_context = ?, current_step_name = ?
    WHERE id = ?`
	res, err := r.dbConnection.ExecContext(ctx, query,
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		jobExecution.ExitCode,
		cols.failures,
		jobExecution.Version+1,
		jobExecution.LastUpdated.UTC(),
		cols.context,
		jobExecution.CurrentStepName,
		jobExecution.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", jobExecution.ID), err, false, false)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", jobExecution.ID), exception.ErrJobExecutionNotFound, false, false)
	}
	jobExecution.Version++
	return nil
}

// FindJobExecutionByID は指定された ID の JobExecution を StepExecution と共に取得します。
func (r *SQLJobExecutionRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM job_executions WHERE id = ?`
	je, err := scanJobExecution(r.dbConnection.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) が見つかりませんでした", executionID), exception.ErrJobExecutionNotFound, false, false)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err, false, false)
	}
	if err := r.attachStepExecutions(ctx, je); err != nil {
		return nil, err
	}
	return je, nil
}

// FindLatestJobExecution は指定された JobInstance の最新の JobExecution を取得します。
func (r *SQLJobExecutionRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM job_executions WHERE job_instance_id = ? ORDER BY create_time DESC LIMIT 1`
	je, err := scanJobExecution(r.dbConnection.QueryRowContext(ctx, query, jobInstanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の最新 JobExecution の取得に失敗しました", jobInstanceID), err, false, false)
	}
	if err := r.attachStepExecutions(ctx, je); err != nil {
		return nil, err
	}
	return je, nil
}

// FindJobExecutionsByJobInstance は JobInstance に属する全ての JobExecution を作成順に返します。
func (r *SQLJobExecutionRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM job_executions WHERE job_instance_id = ? ORDER BY create_time ASC`
	rows, err := r.dbConnection.QueryContext(ctx, query, jobInstance.ID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の JobExecution 検索に失敗しました", jobInstance.ID), err, false, false)
	}
	executions := make([]*core.JobExecution, 0)
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			rows.Close()
			return nil, exception.NewBatchError(module, "JobExecution のスキャンに失敗しました", err, false, false)
		}
		executions = append(executions, je)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "JobExecution 取得後の行処理中にエラーが発生しました", err, false, false)
	}
	// SQLite は接続が1本のため、rows を閉じてから StepExecution を読む
	for _, je := range executions {
		if err := r.attachStepExecutions(ctx, je); err != nil {
			return nil, err
		}
	}
	return executions, nil
}

func (r *SQLJobExecutionRepository) attachStepExecutions(ctx context.Context, je *core.JobExecution) error {
	if r.stepRepo == nil {
		return nil
	}
	steps, err := r.stepRepo.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return err
	}
	for _, se := range steps {
		se.JobExecution = je
		je.AddStepExecution(se)
	}
	return nil
}

func scanJobExecution(row rowScanner) (*core.JobExecution, error) {
	je := &core.JobExecution{}
	var (
		paramsJSON, failuresJSON, contextJSON, currentStep sql.NullString
		status, exitStatus                                 string
		startTime, endTime                                 sql.NullTime
	)
	err := row.Scan(
		&je.ID, &je.JobInstanceID, &je.JobName, &paramsJSON,
		&startTime, &endTime, &status, &exitStatus, &je.ExitCode, &failuresJSON,
		&je.Version, &je.CreateTime, &je.LastUpdated, &contextJSON, &currentStep,
	)
	if err != nil {
		return nil, err
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime = fromNullTime(startTime)
	je.EndTime = fromNullTime(endTime)
	je.CurrentStepName = currentStep.String
	je.StepExecutions = make([]*core.StepExecution, 0)

	if je.Parameters, err = serialization.UnmarshalJobParameters([]byte(paramsJSON.String)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の JobParameters のデコードに失敗しました: %v", je.ID, err)
		je.Parameters = core.NewJobParameters()
	}
	if je.Failures, err = serialization.UnmarshalFailures([]byte(failuresJSON.String)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Failures のデコードに失敗しました: %v", je.ID, err)
		je.Failures = []error{}
	}
	if je.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(contextJSON.String)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の ExecutionContext のデコードに失敗しました: %v", je.ID, err)
		je.ExecutionContext = core.NewExecutionContext()
	}
	return je, nil
}
