// Package memory はプロセス内のマップにバッチのメタデータを保持する JobRepository を提供します。
// プロセス終了とともに内容は失われます。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	"moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// InMemoryJobRepository は job.JobRepository のインメモリ実装です。
// 保存されたオブジェクトはコピーされず、ポインタのまま保持されます。
type InMemoryJobRepository struct {
	mu sync.RWMutex

	instances      map[string]*core.JobInstance
	instanceOrder  []string
	executions     map[string]*core.JobExecution
	executionOrder []string
	stepExecutions map[string]*core.StepExecution
	stepOrder      []string
}

// NewInMemoryJobRepository は空の InMemoryJobRepository を作成します。
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		instances:      make(map[string]*core.JobInstance),
		executions:     make(map[string]*core.JobExecution),
		stepExecutions: make(map[string]*core.StepExecution),
	}
}

// --- JobInstance ---

func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[jobInstance.ID]; exists {
		return exception.NewBatchErrorf("job_repository", "JobInstance (ID: %s) は既に存在します", jobInstance.ID)
	}
	if jobInstance.ParametersHash == "" {
		hash, err := jobInstance.Parameters.Hash()
		if err != nil {
			return exception.NewBatchError("job_repository", "JobParameters のハッシュ計算に失敗しました", err, false, false)
		}
		jobInstance.ParametersHash = hash
	}
	r.instances[jobInstance.ID] = jobInstance
	r.instanceOrder = append(r.instanceOrder, jobInstance.ID)
	logger.Debugf("JobInstance (ID: %s, JobName: %s) を保存しました。", jobInstance.ID, jobInstance.JobName)
	return nil
}

func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError("job_repository", "検索用 JobParameters のハッシュ計算に失敗しました", err, false, false)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.instanceOrder {
		ji := r.instances[id]
		if ji.JobName == jobName && ji.ParametersHash == hash {
			return ji, nil
		}
	}
	return nil, nil
}

func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ji, ok := r.instances[instanceID]
	if !ok {
		return nil, exception.NewBatchErrorf("job_repository", "JobInstance (ID: %s) が見つかりませんでした", instanceID)
	}
	return ji, nil
}

func (r *InMemoryJobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.instanceOrder) - 1; i >= 0; i-- {
		ji := r.instances[r.instanceOrder[i]]
		if ji.JobName == jobName {
			return ji, nil
		}
	}
	return nil, nil
}

func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ji := range r.instances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, ji := range r.instances {
		if _, ok := seen[ji.JobName]; ok {
			continue
		}
		seen[ji.JobName] = struct{}{}
		names = append(names, ji.JobName)
	}
	sort.Strings(names)
	return names, nil
}

// --- JobExecution ---

func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[jobExecution.ID]; exists {
		return exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s) は既に存在します", jobExecution.ID)
	}
	r.executions[jobExecution.ID] = jobExecution
	r.executionOrder = append(r.executionOrder, jobExecution.ID)
	logger.Debugf("JobExecution (ID: %s) を保存しました。", jobExecution.ID)
	return nil
}

func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[jobExecution.ID]; !exists {
		return exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", jobExecution.ID), exception.ErrJobExecutionNotFound, false, false)
	}
	jobExecution.Version++
	r.executions[jobExecution.ID] = jobExecution
	return nil
}

func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je, ok := r.executions[executionID]
	if !ok {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) が見つかりませんでした", executionID), exception.ErrJobExecutionNotFound, false, false)
	}
	return je, nil
}

func (r *InMemoryJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.executionOrder) - 1; i >= 0; i-- {
		je := r.executions[r.executionOrder[i]]
		if je.JobInstanceID == jobInstanceID {
			return je, nil
		}
	}
	return nil, nil
}

func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*core.JobExecution, 0)
	for _, id := range r.executionOrder {
		if je := r.executions[id]; je.JobInstanceID == jobInstance.ID {
			result = append(result, je)
		}
	}
	return result, nil
}

// --- StepExecution ---

func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s) は既に存在します", stepExecution.ID)
	}
	if stepExecution.JobExecutionID == "" && stepExecution.JobExecution != nil {
		stepExecution.JobExecutionID = stepExecution.JobExecution.ID
	}
	r.stepExecutions[stepExecution.ID] = stepExecution
	r.stepOrder = append(r.stepOrder, stepExecution.ID)
	return nil
}

func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stepExecutions[stepExecution.ID]; !exists {
		return exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s) が見つかりませんでした", stepExecution.ID)
	}
	stepExecution.Version++
	r.stepExecutions[stepExecution.ID] = stepExecution
	return nil
}

func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.stepExecutions[executionID]
	if !ok {
		return nil, exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s) が見つかりませんでした", executionID)
	}
	return se, nil
}

func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*core.StepExecution, 0)
	for _, id := range r.stepOrder {
		if se := r.stepExecutions[id]; se.JobExecutionID == jobExecutionID {
			result = append(result, se)
		}
	}
	return result, nil
}

// Close はインメモリリポジトリでは何もしません。
func (r *InMemoryJobRepository) Close() error {
	return nil
}

var _ job.JobRepository = (*InMemoryJobRepository)(nil)
