package step

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// errItemSkipped はスキップされたアイテムを呼び出し元に伝える内部用のエラーです。
var errItemSkipped = errors.New("item skipped")

// ChunkStep はチャンク指向のステップを実装します。
// Reader, Processor, Writer を使用してアイテムを chunkSize 件ずつ処理し、
// チャンクごとにコミット数を進めて ExecutionContext を JobRepository に保存します。
type ChunkStep[I, O any] struct {
	name          string
	reader        core.ItemReader[I]
	processor     core.ItemProcessor[I, O]
	writer        core.ItemWriter[O]
	chunkSize     int
	jobRepository job.JobRepository

	// リスナー
	stepListeners        []core.StepExecutionListener
	chunkListeners       []core.ChunkListener
	itemReadListeners    []core.ItemReadListener
	itemProcessListeners []core.ItemProcessListener
	itemWriteListeners   []core.ItemWriteListener
	skipListeners        []core.SkipListener
	retryItemListeners   []core.RetryItemListener

	// アイテムレベルのリトライ・スキップ設定
	itemRetryConfig config.ItemRetryConfig
	itemSkipConfig  config.ItemSkipConfig

	executionContextPromotion *core.ExecutionContextPromotion
}

// ChunkStepOption は ChunkStep の任意設定です。
type ChunkStepOption[I, O any] func(*ChunkStep[I, O])

func WithStepListeners[I, O any](ls ...core.StepExecutionListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.stepListeners = append(cs.stepListeners, ls...) }
}

func WithChunkListeners[I, O any](ls ...core.ChunkListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.chunkListeners = append(cs.chunkListeners, ls...) }
}

func WithItemReadListeners[I, O any](ls ...core.ItemReadListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.itemReadListeners = append(cs.itemReadListeners, ls...) }
}

func WithItemProcessListeners[I, O any](ls ...core.ItemProcessListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.itemProcessListeners = append(cs.itemProcessListeners, ls...) }
}

func WithItemWriteListeners[I, O any](ls ...core.ItemWriteListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.itemWriteListeners = append(cs.itemWriteListeners, ls...) }
}

func WithSkipListeners[I, O any](ls ...core.SkipListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.skipListeners = append(cs.skipListeners, ls...) }
}

func WithRetryItemListeners[I, O any](ls ...core.RetryItemListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.retryItemListeners = append(cs.retryItemListeners, ls...) }
}

// WithItemRetry はアイテムレベルのリトライ設定を指定します。MaxAttempts は初回を含む試行回数です。
func WithItemRetry[I, O any](cfg config.ItemRetryConfig) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.itemRetryConfig = cfg }
}

// WithItemSkip はアイテムレベルのスキップ設定を指定します。
func WithItemSkip[I, O any](cfg config.ItemSkipConfig) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.itemSkipConfig = cfg }
}

// WithPromotion はステップ完了後に JobExecutionContext へ昇格させるキーを指定します。
func WithPromotion[I, O any](p *core.ExecutionContextPromotion) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.executionContextPromotion = p }
}

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。
// リトライとスキップはデフォルトで無効です。
func NewChunkStep[I, O any](
	name string,
	r core.ItemReader[I],
	p core.ItemProcessor[I, O],
	w core.ItemWriter[O],
	chunkSize int,
	repo job.JobRepository,
	opts ...ChunkStepOption[I, O],
) *ChunkStep[I, O] {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	cs := &ChunkStep[I, O]{
		name:          name,
		reader:        r,
		processor:     p,
		writer:        w,
		chunkSize:     chunkSize,
		jobRepository: repo,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// ID はステップのIDを返します。
func (cs *ChunkStep[I, O]) ID() string {
	return cs.name
}

// StepName はステップの名前を返します。
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// ChunkSize は1チャンクあたりのアイテム数を返します。
func (cs *ChunkStep[I, O]) ChunkSize() int {
	return cs.chunkSize
}

// Execute はチャンクステップのビジネスロジックを実行します。
// stepExecution は呼び出し元で作成・保存済みであることを前提とします。
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("ステップ '%s' の実行を開始します。", cs.name)

	for _, l := range cs.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	stepExecution.MarkAsStarted()
	if err := cs.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		logger.Errorf("ステップ '%s': StepExecution (ID: %s) の状態更新に失敗しました: %v", cs.name, stepExecution.ID, err)
	}

	runErr := cs.runChunks(ctx, stepExecution)

	switch {
	case runErr == nil:
		stepExecution.MarkAsCompleted()
	case ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(runErr)
		logger.Warnf("ステップ '%s' がコンテキストキャンセルにより停止されました: %v", cs.name, runErr)
	default:
		stepExecution.MarkAsFailed(runErr)
		logger.Errorf("ステップ '%s' が失敗しました: %v", cs.name, runErr)
	}

	for _, l := range cs.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	if runErr == nil {
		cs.executionContextPromotion.Promote(stepExecution.ExecutionContext, jobExecution.ExecutionContext)
	}

	// キャンセル後でも最終状態は保存する
	if err := cs.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("ステップ '%s' の最終 StepExecution (ID: %s) の更新に失敗しました: %v", cs.name, stepExecution.ID, err)
	}
	logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 終了ステータス: %s", cs.name, stepExecution.Status, stepExecution.ExitStatus)

	if runErr != nil {
		return exception.NewBatchError(cs.name, "チャンク処理に失敗しました", runErr, false, false)
	}
	return nil
}

// runChunks は Reader と Writer を開き、入力が尽きるまでチャンクを処理します。
// Reader を先に開くため、入力元に到達できない場合に出力先が作成されることはありません。
func (cs *ChunkStep[I, O]) runChunks(ctx context.Context, stepExecution *core.StepExecution) (err error) {
	if err = cs.reader.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.reader.Close(ctx); cerr != nil {
			logger.Errorf("ステップ '%s': Reader のクローズに失敗しました: %v", cs.name, cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	if err = cs.writer.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.writer.Close(ctx); cerr != nil {
			logger.Errorf("ステップ '%s': Writer のクローズに失敗しました: %v", cs.name, cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := cs.processChunk(ctx, stepExecution)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// processChunk は1チャンク分の読み込み・処理・書き込み・コミットを行います。
// 入力の終端に達した場合は done に true を返します。
func (cs *ChunkStep[I, O]) processChunk(ctx context.Context, stepExecution *core.StepExecution) (done bool, err error) {
	for _, l := range cs.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}
	defer func() {
		if err != nil {
			stepExecution.RollbackCount++
			for _, l := range cs.chunkListeners {
				l.AfterChunkError(ctx, stepExecution, err)
			}
		}
	}()

	items := make([]O, 0, cs.chunkSize)
	readInChunk := 0
	for readInChunk < cs.chunkSize {
		item, rerr := cs.readItem(ctx, stepExecution)
		if errors.Is(rerr, io.EOF) {
			done = true
			break
		}
		if errors.Is(rerr, errItemSkipped) {
			continue
		}
		if rerr != nil {
			return false, rerr
		}
		readInChunk++
		stepExecution.ReadCount++

		out, perr := cs.processItem(ctx, stepExecution, item)
		if errors.Is(perr, errItemSkipped) {
			continue
		}
		if perr != nil {
			return false, perr
		}
		if isNilOrZero(out) {
			stepExecution.FilterCount++
			continue
		}
		items = append(items, out)
	}

	if readInChunk == 0 && len(items) == 0 {
		return done, nil
	}

	if len(items) > 0 {
		written, werr := cs.writeItems(ctx, stepExecution, items)
		if werr != nil {
			return false, werr
		}
		stepExecution.WriteCount += written
	}

	stepExecution.CommitCount++
	if err := cs.checkpoint(ctx, stepExecution); err != nil {
		return false, err
	}
	logger.Debugf("ステップ '%s': %d アイテムを読み込み、%d アイテムを書き込みました。コミットカウント: %d",
		cs.name, readInChunk, len(items), stepExecution.CommitCount)

	for _, l := range cs.chunkListeners {
		l.AfterChunk(ctx, stepExecution)
	}
	return done, nil
}

// checkpoint は Reader と Writer の状態を StepExecutionContext に取り込み、永続化します。
func (cs *ChunkStep[I, O]) checkpoint(ctx context.Context, stepExecution *core.StepExecution) error {
	readerEC, err := cs.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(cs.name, "Reader の ExecutionContext 取得に失敗しました", err, false, false)
	}
	writerEC, err := cs.writer.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(cs.name, "Writer の ExecutionContext 取得に失敗しました", err, false, false)
	}
	if stepExecution.ExecutionContext == nil {
		stepExecution.ExecutionContext = core.NewExecutionContext()
	}
	for k, v := range readerEC {
		stepExecution.ExecutionContext.Put(k, v)
	}
	for k, v := range writerEC {
		stepExecution.ExecutionContext.Put(k, v)
	}
	stepExecution.LastUpdated = time.Now()
	if err := cs.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(cs.name, fmt.Sprintf("StepExecution (ID: %s) のチェックポイント保存に失敗しました", stepExecution.ID), err, false, false)
	}
	return nil
}

func (cs *ChunkStep[I, O]) readItem(ctx context.Context, stepExecution *core.StepExecution) (I, error) {
	var zero I
	for attempt := 1; ; attempt++ {
		item, err := cs.reader.Read(ctx)
		if err == nil || errors.Is(err, io.EOF) {
			return item, err
		}
		if cs.shouldRetry(err, attempt) {
			logger.Warnf("アイテム読み込みエラー (リトライ可能): %v (試行回数: %d/%d)", err, attempt, cs.itemRetryConfig.MaxAttempts)
			for _, l := range cs.retryItemListeners {
				l.OnRetryRead(ctx, err)
			}
			if werr := cs.backoff(ctx, attempt); werr != nil {
				return zero, werr
			}
			continue
		}
		for _, l := range cs.itemReadListeners {
			l.OnReadError(ctx, err)
		}
		if cs.shouldSkip(err, stepExecution.SkipReadCount) {
			stepExecution.SkipReadCount++
			for _, l := range cs.skipListeners {
				l.OnSkipRead(ctx, err)
			}
			return zero, errItemSkipped
		}
		return zero, err
	}
}

func (cs *ChunkStep[I, O]) processItem(ctx context.Context, stepExecution *core.StepExecution, item I) (O, error) {
	var zero O
	for attempt := 1; ; attempt++ {
		out, err := cs.processor.Process(ctx, item)
		if err == nil {
			return out, nil
		}
		if cs.shouldRetry(err, attempt) {
			logger.Warnf("アイテム処理エラー (リトライ可能): %v (試行回数: %d/%d)", err, attempt, cs.itemRetryConfig.MaxAttempts)
			for _, l := range cs.retryItemListeners {
				l.OnRetryProcess(ctx, item, err)
			}
			if werr := cs.backoff(ctx, attempt); werr != nil {
				return zero, werr
			}
			continue
		}
		for _, l := range cs.itemProcessListeners {
			l.OnProcessError(ctx, item, err)
		}
		if cs.shouldSkip(err, stepExecution.SkipProcessCount) {
			stepExecution.SkipProcessCount++
			for _, l := range cs.skipListeners {
				l.OnSkipProcess(ctx, item, err)
			}
			return zero, errItemSkipped
		}
		return zero, err
	}
}

// writeItems はチャンクを書き込み、書き込んだアイテム数を返します。
// スキップされたチャンクは 0 件として扱います。
func (cs *ChunkStep[I, O]) writeItems(ctx context.Context, stepExecution *core.StepExecution, items []O) (int, error) {
	for attempt := 1; ; attempt++ {
		err := cs.writer.Write(ctx, items)
		if err == nil {
			return len(items), nil
		}
		if cs.shouldRetry(err, attempt) {
			logger.Warnf("アイテム書き込みエラー (リトライ可能): %v (試行回数: %d/%d)", err, attempt, cs.itemRetryConfig.MaxAttempts)
			for _, l := range cs.retryItemListeners {
				l.OnRetryWrite(ctx, toInterfaceSlice(items), err)
			}
			if werr := cs.backoff(ctx, attempt); werr != nil {
				return 0, werr
			}
			continue
		}
		for _, l := range cs.itemWriteListeners {
			l.OnWriteError(ctx, toInterfaceSlice(items), err)
		}
		if cs.shouldSkip(err, stepExecution.SkipWriteCount) {
			stepExecution.SkipWriteCount += len(items)
			for _, l := range cs.skipListeners {
				for _, item := range items {
					l.OnSkipWrite(ctx, item, err)
				}
			}
			return 0, nil
		}
		return 0, err
	}
}

// shouldRetry はエラーがリトライ対象で、試行回数が上限未満かどうかを返します。
func (cs *ChunkStep[I, O]) shouldRetry(err error, attempt int) bool {
	if attempt >= cs.itemRetryConfig.MaxAttempts {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	return exception.MatchesAny(err, cs.itemRetryConfig.RetryableExceptions)
}

// shouldSkip はエラーがスキップ対象で、スキップ数が上限未満かどうかを返します。
func (cs *ChunkStep[I, O]) shouldSkip(err error, skipped int) bool {
	if skipped >= cs.itemSkipConfig.SkipLimit {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsSkippable() {
		return true
	}
	return exception.MatchesAny(err, cs.itemSkipConfig.SkippableExceptions)
}

// backoff は試行回数に応じて待機します。待機中にコンテキストがキャンセルされた場合はそのエラーを返します。
func (cs *ChunkStep[I, O]) backoff(ctx context.Context, attempt int) error {
	interval := time.Duration(cs.itemRetryConfig.InitialInterval) * time.Millisecond
	if interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(interval * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isNilOrZero は Processor の出力がフィルタ対象 (nil またはゼロ値) かどうかを判定します。
func isNilOrZero[T any](v T) bool {
	rv := reflect.ValueOf(&v).Elem()
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}

// toInterfaceSlice は任意の型のスライスを []interface{} に変換します。
func toInterfaceSlice[T any](slice []T) []interface{} {
	result := make([]interface{}, len(slice))
	for i, v := range slice {
		result[i] = v
	}
	return result
}

var _ core.Step = (*ChunkStep[any, any])(nil)
