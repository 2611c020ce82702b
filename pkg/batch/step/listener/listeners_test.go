package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

func TestLoggingListeners_Levels(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.ReplaceLogger(zap.New(obsCore)))

	ctx := context.Background()
	boom := errors.New("boom")
	se := core.NewStepExecution("movieStep", nil)

	NewLoggingChunkListener().BeforeChunk(ctx, se)
	NewLoggingChunkListener().AfterChunk(ctx, se)
	NewLoggingChunkListener().AfterChunkError(ctx, se, boom)
	NewLoggingItemReadListener().OnReadError(ctx, boom)
	NewLoggingItemProcessListener().OnProcessError(ctx, "Heat", boom)
	NewLoggingItemWriteListener().OnWriteError(ctx, []interface{}{"a", "b"}, boom)
	NewLoggingRetryItemListener().OnRetryRead(ctx, boom)
	NewLoggingSkipListener().OnSkipProcess(ctx, "Heat", boom)

	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.DebugLevel).Len())
	assert.Equal(t, 4, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("アイテム数: 2").Len())
}
