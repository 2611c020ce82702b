package listener

import (
	"context"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// LoggingRetryItemListener はアイテムレベルのリトライイベントをログ出力する RetryItemListener の実装です。
type LoggingRetryItemListener struct{}

func NewLoggingRetryItemListener() *LoggingRetryItemListener {
	return &LoggingRetryItemListener{}
}

func (l *LoggingRetryItemListener) OnRetryRead(ctx context.Context, err error) {
	logger.Warnf("アイテムの読み込みエラーがリトライされます: %v", err)
}

func (l *LoggingRetryItemListener) OnRetryProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("アイテムの処理エラーがリトライされます (アイテム: %+v): %v", item, err)
}

func (l *LoggingRetryItemListener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {
	logger.Warnf("アイテムの書き込みエラーがリトライされます (アイテム数: %d): %v", len(items), err)
}

// LoggingSkipListener はアイテムスキップイベントをログ出力する SkipListener の実装です。
type LoggingSkipListener struct{}

func NewLoggingSkipListener() *LoggingSkipListener {
	return &LoggingSkipListener{}
}

func (l *LoggingSkipListener) OnSkipRead(ctx context.Context, err error) {
	logger.Warnf("アイテムの読み込み中にスキップされました: %v", err)
}

func (l *LoggingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("アイテムの処理中にスキップされました (アイテム: %+v): %v", item, err)
}

func (l *LoggingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("アイテムの書き込み中にスキップされました (アイテム: %+v): %v", item, err)
}

var (
	_ core.RetryItemListener = (*LoggingRetryItemListener)(nil)
	_ core.SkipListener      = (*LoggingSkipListener)(nil)
)
