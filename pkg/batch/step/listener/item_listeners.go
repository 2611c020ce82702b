package listener

import (
	"context"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// LoggingItemReadListener はアイテム読み込みエラーをログ出力します。
type LoggingItemReadListener struct{}

func NewLoggingItemReadListener() *LoggingItemReadListener {
	return &LoggingItemReadListener{}
}

func (l *LoggingItemReadListener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("アイテムの読み込み中にエラーが発生しました: %v", err)
}

// LoggingItemProcessListener はアイテム処理エラーをログ出力します。
type LoggingItemProcessListener struct{}

func NewLoggingItemProcessListener() *LoggingItemProcessListener {
	return &LoggingItemProcessListener{}
}

func (l *LoggingItemProcessListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Errorf("アイテムの処理中にエラーが発生しました (アイテム: %+v): %v", item, err)
}

// LoggingItemWriteListener はアイテム書き込みエラーをログ出力します。
type LoggingItemWriteListener struct{}

func NewLoggingItemWriteListener() *LoggingItemWriteListener {
	return &LoggingItemWriteListener{}
}

func (l *LoggingItemWriteListener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("アイテムの書き込み中にエラーが発生しました (アイテム数: %d): %v", len(items), err)
}

var (
	_ core.ItemReadListener    = (*LoggingItemReadListener)(nil)
	_ core.ItemProcessListener = (*LoggingItemProcessListener)(nil)
	_ core.ItemWriteListener   = (*LoggingItemWriteListener)(nil)
)
