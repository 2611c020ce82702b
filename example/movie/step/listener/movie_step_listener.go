package listener

import (
	"context"
	"time"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// NewMovieStepListener はステップの開始時刻を記録し、終了時に経過時間と件数をログに出力するリスナーを返します。
func NewMovieStepListener() core.StepExecutionListener {
	var startedAt time.Time
	return core.StepExecutionListenerFuncs{
		Before: func(ctx context.Context, se *core.StepExecution) {
			startedAt = time.Now()
			logger.Infof("Step name: %s Started", se.StepName)
		},
		After: func(ctx context.Context, se *core.StepExecution) {
			elapsed := time.Since(startedAt).Milliseconds()
			logger.Infof("Step name: %s Ended. Running time is %d milliseconds.", se.StepName, elapsed)
			logger.Infof("Read Count:%d Write Count:%d", se.ReadCount, se.WriteCount)
		},
	}
}
