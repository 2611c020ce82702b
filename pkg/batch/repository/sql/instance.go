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

const instanceColumns = `id, job_name, job_parameters, create_time, version, parameters_hash`

// SQLJobInstanceRepository は JobInstance インターフェースの SQL データベース実装です。
type SQLJobInstanceRepository struct {
	dbConnection database.DBConnection
}

// NewSQLJobInstanceRepository は新しい SQLJobInstanceRepository のインスタンスを作成します。
func NewSQLJobInstanceRepository(dbConn database.DBConnection) *SQLJobInstanceRepository {
	return &SQLJobInstanceRepository{dbConnection: dbConn}
}

// SaveJobInstance は新しい JobInstance をデータベースに保存します。
func (r *SQLJobInstanceRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	paramsJSON, err := serialization.MarshalJobParameters(jobInstance.Parameters)
	if err != nil {
		return exception.NewBatchError(module, "JobInstance JobParameters のシリアライズに失敗しました", err, false, false)
	}
	if jobInstance.ParametersHash == "" {
		if jobInstance.ParametersHash, err = jobInstance.Parameters.Hash(); err != nil {
			return exception.NewBatchError(module, "JobParameters のハッシュ計算に失敗しました", err, false, false)
		}
	}

	query := `INSERT INTO job_instances (` + instanceColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.dbConnection.ExecContext(ctx, query,
		jobInstance.ID,
		jobInstance.JobName,
		string(paramsJSON),
		jobInstance.CreateTime.UTC(),
		jobInstance.Version,
		jobInstance.ParametersHash,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の保存に失敗しました", jobInstance.ID), err, false, false)
	}
	logger.Debugf("JobInstance (ID: %s, JobName: %s) を保存しました。", jobInstance.ID, jobInstance.JobName)
	return nil
}

// FindJobInstanceByJobNameAndParameters はジョブ名とパラメータのハッシュで JobInstance を検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	paramsHash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError(module, "検索用 JobParameters のハッシュ計算に失敗しました", err, false, false)
	}
	query := `SELECT ` + instanceColumns + ` FROM job_instances WHERE job_name = ? AND parameters_hash = ?`
	ji, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, jobName, paramsHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s) の検索に失敗しました", jobName), err, false, false)
	}
	return ji, nil
}

// FindJobInstanceByID は指定された ID の JobInstance をデータベースから取得します。
func (r *SQLJobInstanceRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM job_instances WHERE id = ?`
	ji, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchErrorf(module, "JobInstance (ID: %s) が見つかりませんでした", instanceID)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err, false, false)
	}
	return ji, nil
}

// FindLatestJobInstance は指定されたジョブ名で最後に作成された JobInstance を返します。
func (r *SQLJobInstanceRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*core.JobInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM job_instances WHERE job_name = ? ORDER BY create_time DESC, id DESC LIMIT 1`
	ji, err := scanJobInstance(r.dbConnection.QueryRowContext(ctx, query, jobName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("ジョブ '%s' の最新 JobInstance の取得に失敗しました", jobName), err, false, false)
	}
	return ji, nil
}

// GetJobInstanceCount は指定されたジョブ名の JobInstance の数を返します。
func (r *SQLJobInstanceRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	var count int
	err := r.dbConnection.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_instances WHERE job_name = ?`, jobName).Scan(&count)
	if err != nil {
		return 0, exception.NewBatchError(module, fmt.Sprintf("ジョブ '%s' の JobInstance 数取得に失敗しました", jobName), err, false, false)
	}
	return count, nil
}

// GetJobNames はリポジトリに存在する全てのジョブ名を返します。
func (r *SQLJobInstanceRepository) GetJobNames(ctx context.Context) ([]string, error) {
	rows, err := r.dbConnection.QueryContext(ctx, `SELECT DISTINCT job_name FROM job_instances ORDER BY job_name`)
	if err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名の取得に失敗しました", err, false, false)
	}
	defer rows.Close()

	jobNames := make([]string, 0)
	for rows.Next() {
		var jobName string
		if err := rows.Scan(&jobName); err != nil {
			return nil, exception.NewBatchError(module, "ジョブ名のスキャン中にエラーが発生しました", err, false, false)
		}
		jobNames = append(jobNames, jobName)
	}
	if err := rows.Err(); err != nil {
		return jobNames, exception.NewBatchError(module, "ジョブ名取得後の行処理中にエラーが発生しました", err, false, false)
	}
	return jobNames, nil
}

func scanJobInstance(row rowScanner) (*core.JobInstance, error) {
	ji := &core.JobInstance{}
	var paramsJSON, hash sql.NullString
	if err := row.Scan(&ji.ID, &ji.JobName, &paramsJSON, &ji.CreateTime, &ji.Version, &hash); err != nil {
		return nil, err
	}
	params, err := serialization.UnmarshalJobParameters([]byte(paramsJSON.String))
	if err != nil {
		logger.Errorf("JobInstance (ID: %s) の JobParameters のデコードに失敗しました: %v", ji.ID, err)
		params = core.NewJobParameters()
	}
	ji.Parameters = params
	ji.ParametersHash = hash.String
	return ji, nil
}
