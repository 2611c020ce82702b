package incrementer

import (
	"fmt"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// DefaultRunIDKey は RunIDIncrementer が使用するパラメータ名の既定値です。
const DefaultRunIDKey = "run.id"

// RunIDIncrementer はジョブパラメータの "run.id" を追加またはインクリメントする JobParametersIncrementer の実装です。
// JobLauncher は直前の JobInstance のパラメータを渡すため、起動のたびに新しい JobInstance になります。
type RunIDIncrementer struct {
	key string
}

// NewRunIDIncrementer は新しい RunIDIncrementer のインスタンスを作成します。key が空の場合は "run.id" を使用します。
func NewRunIDIncrementer(key string) *RunIDIncrementer {
	if key == "" {
		key = DefaultRunIDKey
	}
	return &RunIDIncrementer{key: key}
}

// GetNext は params をコピーし、run.id を 1 増やして返します。run.id が無い場合は 1 を設定します。
func (i *RunIDIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	next := params.Copy()
	current, ok := params.GetInt(i.key)
	if !ok {
		current = 0
	}
	next.Put(i.key, current+1)
	logger.Debugf("JobParametersIncrementer: '%s' を %d から %d にインクリメントしました。", i.key, current, current+1)
	return next
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[key=%s]", i.key)
}

var _ core.JobParametersIncrementer = (*RunIDIncrementer)(nil)
