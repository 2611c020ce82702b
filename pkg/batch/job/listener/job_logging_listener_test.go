package listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	obsCore, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.ReplaceLogger(zap.New(obsCore)))
	return logs
}

func TestLoggingJobListener(t *testing.T) {
	logs := observe(t)
	l := NewLoggingJobListener(&config.LoggingConfig{Level: "INFO"})

	je := core.NewJobExecution("instance", "movieJob", core.NewJobParameters())
	l.BeforeJob(context.Background(), je)
	je.MarkAsStarted()
	je.StartTime = je.StartTime.Add(-1500 * time.Millisecond)
	je.MarkAsCompleted()
	l.AfterJob(context.Background(), je)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "movieJob")
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "正常に完了")
}

func TestLoggingJobListener_Failed(t *testing.T) {
	logs := observe(t)
	l := NewLoggingJobListener(&config.LoggingConfig{})

	je := core.NewJobExecution("instance", "movieJob", core.NewJobParameters())
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("boom"))
	l.AfterJob(context.Background(), je)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "FAILED")
	assert.Contains(t, entries[0].Message, "失敗数: 1")
}
