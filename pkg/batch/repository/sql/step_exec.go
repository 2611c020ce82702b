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

const stepColumns = `id, job_execution_id, step_name, start_time, end_time, status, exit_status, failures, read_count, write_count, commit_count, rollback_count, filter_count, skip_read_count, skip_process_count, skip_write_count, execution_context, last_updated, version`

// SQLStepExecutionRepository は StepExecution インターフェースの SQL データベース実装です。
type SQLStepExecutionRepository struct {
	dbConnection database.DBConnection
}

// NewSQLStepExecutionRepository は新しい SQLStepExecutionRepository のインスタンスを作成します。
func NewSQLStepExecutionRepository(dbConn database.DBConnection) *SQLStepExecutionRepository {
	return &SQLStepExecutionRepository{dbConnection: dbConn}
}

func jobExecutionIDOf(se *core.StepExecution) (string, error) {
	if se.JobExecutionID != "" {
		return se.JobExecutionID, nil
	}
	if se.JobExecution != nil {
		return se.JobExecution.ID, nil
	}
	return "", exception.NewBatchErrorf(module, "StepExecution (ID: %s) が JobExecution に紐づいていません", se.ID)
}

// SaveStepExecution は新しい StepExecution をデータベースに保存します。
func (r *SQLStepExecutionRepository) SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	jobExecutionID, err := jobExecutionIDOf(stepExecution)
	if err != nil {
		return err
	}
	stepExecution.JobExecutionID = jobExecutionID
	failuresJSON, err := serialization.MarshalFailures(stepExecution.Failures)
	if err != nil {
		return exception.NewBatchError(module, "StepExecution Failures のエンコードに失敗しました", err, false, false)
	}
	contextJSON, err := serialization.MarshalExecutionContext(stepExecution.ExecutionContext)
	if err != nil {
		return exception.NewBatchError(module, "StepExecution ExecutionContext のシリアライズに失敗しました", err, false, false)
	}

	query := `INSERT INTO step_executions (` + stepColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.dbConnection.ExecContext(ctx, query,
		stepExecution.ID,
		jobExecutionID,
		stepExecution.StepName,
		nullTime(stepExecution.StartTime),
		nullTime(stepExecution.EndTime),
		string(stepExecution.Status),
		string(stepExecution.ExitStatus),
		string(failuresJSON),
		stepExecution.ReadCount,
		stepExecution.WriteCount,
		stepExecution.CommitCount,
		stepExecution.RollbackCount,
		stepExecution.FilterCount,
		stepExecution.SkipReadCount,
		stepExecution.SkipProcessCount,
		stepExecution.SkipWriteCount,
		string(contextJSON),
		stepExecution.LastUpdated.UTC(),
		stepExecution.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", stepExecution.ID), err, false, false)
	}
	logger.Debugf("StepExecution (ID: %s, StepName: %s) を保存しました。", stepExecution.ID, stepExecution.StepName)
	return nil
}

// UpdateStepExecution は既存の StepExecution の状態を更新します。
func (r *SQLStepExecutionRepository) UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	failuresJSON, err := serialization.MarshalFailures(stepExecution.Failures)
	if err != nil {
		return exception.NewBatchError(module, "StepExecution Failures のエンコードに失敗しました", err, false, false)
	}
	contextJSON, err := serialization.MarshalExecutionContext(stepExecution.ExecutionContext)
	if err != nil {
		return exception.NewBatchError(module, "StepExecution ExecutionContext のシリアライズに失敗しました", err, false, false)
	}

	query := `
    UPDATE step_executions
    SET start_time = ?, end_time = ?, status = ?, exit_status = ?, failures = ?,
        read_count = ?, write_count = ?, commit_count = ?, rollback_count = ?, filter_count = ?,
        skip_read_count = ?, skip_process_count = ?, skip_write_count = ?,
        execution_context = ?, last_updated = ?, version = ?
    WHERE id = ?`
	res, err := r.dbConnection.ExecContext(ctx, query,
		nullTime(stepExecution.StartTime),
		nullTime(stepExecution.EndTime),
		string(stepExecution.Status),
		string(stepExecution.ExitStatus),
		string(failuresJSON),
		stepExecution.ReadCount,
		stepExecution.WriteCount,
		stepExecution.CommitCount,
		stepExecution.RollbackCount,
		stepExecution.FilterCount,
		stepExecution.SkipReadCount,
		stepExecution.SkipProcessCount,
		stepExecution.SkipWriteCount,
		string(contextJSON),
		stepExecution.LastUpdated.UTC(),
		stepExecution.Version+1,
		stepExecution.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の更新に失敗しました", stepExecution.ID), err, false, false)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exception.NewBatchErrorf(module, "StepExecution (ID: %s) が見つかりませんでした", stepExecution.ID)
	}
	stepExecution.Version++
	return nil
}

// FindStepExecutionByID は指定された ID の StepExecution を取得します。
func (r *SQLStepExecutionRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error) {
	query := `SELECT ` + stepColumns + ` FROM step_executions WHERE id = ?`
	se, err := scanStepExecution(r.dbConnection.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchErrorf(module, "StepExecution (ID: %s) が見つかりませんでした", executionID)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の取得に失敗しました", executionID), err, false, false)
	}
	return se, nil
}

// FindStepExecutionsByJobExecutionID は JobExecution に属する StepExecution を開始順に返します。
func (r *SQLStepExecutionRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	query := `SELECT ` + stepColumns + ` FROM step_executions WHERE job_execution_id = ? ORDER BY start_time ASC, last_updated ASC`
	rows, err := r.dbConnection.QueryContext(ctx, query, jobExecutionID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の StepExecution 検索に失敗しました", jobExecutionID), err, false, false)
	}
	defer rows.Close()

	steps := make([]*core.StepExecution, 0)
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "StepExecution のスキャンに失敗しました", err, false, false)
		}
		steps = append(steps, se)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "StepExecution 取得後の行処理中にエラーが発生しました", err, false, false)
	}
	return steps, nil
}

func scanStepExecution(row rowScanner) (*core.StepExecution, error) {
	se := &core.StepExecution{}
	var (
		status, exitStatus        string
		failuresJSON, contextJSON sql.NullString
		startTime, endTime        sql.NullTime
	)
	err := row.Scan(
		&se.ID, &se.JobExecutionID, &se.StepName, &startTime, &endTime, &status, &exitStatus, &failuresJSON,
		&se.ReadCount, &se.WriteCount, &se.CommitCount, &se.RollbackCount, &se.FilterCount,
		&se.SkipReadCount, &se.SkipProcessCount, &se.SkipWriteCount,
		&contextJSON, &se.LastUpdated, &se.Version,
	)
	if err != nil {
		return nil, err
	}
	se.Status = core.JobStatus(status)
	se.ExitStatus = core.ExitStatus(exitStatus)
	se.StartTime = fromNullTime(startTime)
	se.EndTime = fromNullTime(endTime)
	if se.Failures, err = serialization.UnmarshalFailures([]byte(failuresJSON.String)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の Failures のデコードに失敗しました: %v", se.ID, err)
		se.Failures = []error{}
	}
	if se.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(contextJSON.String)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の ExecutionContext のデコードに失敗しました: %v", se.ID, err)
		se.ExecutionContext = core.NewExecutionContext()
	}
	return se, nil
}
