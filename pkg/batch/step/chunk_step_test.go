package step_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/memory"
	"moviebatch/pkg/batch/step"
	"moviebatch/pkg/batch/util/exception"
)

const sliceReaderKey = "sliceReader.read.count"

// sliceReader はスライスからアイテムを返す ItemReader です。failAt 番目の Read でエラーを返します。
type sliceReader struct {
	items   []int
	pos     int
	failAt  int
	failErr error
	opened  bool
	closed  bool
}

func (r *sliceReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	r.opened = true
	if n, ok := ec.GetInt(sliceReaderKey); ok {
		r.pos = n
	}
	return nil
}

func (r *sliceReader) Read(ctx context.Context) (int, error) {
	if r.failErr != nil && r.pos == r.failAt {
		r.failAt = -1
		return 0, r.failErr
	}
	if r.pos >= len(r.items) {
		return 0, io.EOF
	}
	v := r.items[r.pos]
	r.pos++
	return v, nil
}

func (r *sliceReader) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

func (r *sliceReader) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put(sliceReaderKey, r.pos)
	return ec, nil
}

// recordingWriter は書き込まれたチャンクを記録する ItemWriter です。
type recordingWriter struct {
	chunks  [][]string
	openErr error
	opened  bool
	closed  bool
}

func (w *recordingWriter) Open(ctx context.Context, ec core.ExecutionContext) error {
	w.opened = true
	return w.openErr
}

func (w *recordingWriter) Write(ctx context.Context, items []string) error {
	w.chunks = append(w.chunks, append([]string(nil), items...))
	return nil
}

func (w *recordingWriter) Close(ctx context.Context) error {
	w.closed = true
	return nil
}

func (w *recordingWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put("recordingWriter.chunks", len(w.chunks))
	return ec, nil
}

type itoaProcessor struct{}

func (itoaProcessor) Process(ctx context.Context, item int) (string, error) {
	if item < 0 {
		// 負の値はフィルタする
		return "", nil
	}
	return strconv.Itoa(item), nil
}

type failingReader struct {
	sliceReader
	openErr error
}

func (r *failingReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	r.opened = true
	return r.openErr
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func newExecutions(t *testing.T, repo *memory.InMemoryJobRepository, stepName string) (*core.JobExecution, *core.StepExecution) {
	t.Helper()
	ctx := context.Background()
	ji, err := core.NewJobInstance("testJob", core.NewJobParameters())
	require.NoError(t, err)
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	je := core.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := core.NewStepExecution(stepName, je)
	je.AddStepExecution(se)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	return je, se
}

func TestChunkStep_WritesInChunks(t *testing.T) {
	tests := []struct {
		name        string
		items       []int
		chunkSize   int
		wantChunks  []int
		wantCommits int
	}{
		{"exact multiple", seq(20), 10, []int{10, 10}, 2},
		{"remainder", seq(25), 10, []int{10, 10, 5}, 3},
		{"smaller than chunk", seq(3), 10, []int{3}, 1},
		{"empty input", nil, 10, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewInMemoryJobRepository()
			je, se := newExecutions(t, repo, "chunkStep")
			r := &sliceReader{items: tt.items, failAt: -1}
			w := &recordingWriter{}

			var before, after int
			listener := core.StepExecutionListenerFuncs{
				Before: func(ctx context.Context, se *core.StepExecution) { before++ },
				After:  func(ctx context.Context, se *core.StepExecution) { after++ },
			}
			cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, tt.chunkSize, repo,
				step.WithStepListeners[int, string](listener))

			require.NoError(t, cs.Execute(context.Background(), je, se))

			sizes := make([]int, 0, len(w.chunks))
			for _, c := range w.chunks {
				sizes = append(sizes, len(c))
			}
			if tt.wantChunks == nil {
				assert.Empty(t, sizes)
			} else {
				assert.Equal(t, tt.wantChunks, sizes)
			}
			assert.Equal(t, core.BatchStatusCompleted, se.Status)
			assert.Equal(t, core.ExitStatusCompleted, se.ExitStatus)
			assert.Equal(t, len(tt.items), se.ReadCount)
			assert.Equal(t, len(tt.items), se.WriteCount)
			assert.Equal(t, tt.wantCommits, se.CommitCount)
			assert.Equal(t, 1, before)
			assert.Equal(t, 1, after)
			assert.True(t, r.closed)
			assert.True(t, w.closed)
			assert.Equal(t, tt.chunkSize, cs.ChunkSize())
		})
	}
}

func TestChunkStep_FiltersZeroValues(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	w := &recordingWriter{}
	cs := step.NewChunkStep[int, string]("chunkStep", &sliceReader{items: []int{1, -1, 2}, failAt: -1}, itoaProcessor{}, w, 10, repo)

	require.NoError(t, cs.Execute(context.Background(), je, se))
	assert.Equal(t, [][]string{{"1", "2"}}, w.chunks)
	assert.Equal(t, 3, se.ReadCount)
	assert.Equal(t, 2, se.WriteCount)
	assert.Equal(t, 1, se.FilterCount)
}

func TestChunkStep_CheckpointsAfterEachCommit(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	readErr := errors.New("decode failed")
	r := &sliceReader{items: seq(25), failAt: 15, failErr: readErr}
	w := &recordingWriter{}
	cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, 10, repo)

	err := cs.Execute(context.Background(), je, se)
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)

	var be *exception.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "chunkStep", be.Module)

	assert.Equal(t, core.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 1, se.RollbackCount)
	// 最後にコミットしたチャンクの位置だけが保存される
	n, ok := se.ExecutionContext.GetInt(sliceReaderKey)
	require.True(t, ok)
	assert.Equal(t, 10, n)

	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, stored.Status)
}

func TestChunkStep_ResumesFromExecutionContext(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	se.ExecutionContext.Put(sliceReaderKey, 10)
	w := &recordingWriter{}
	cs := step.NewChunkStep[int, string]("chunkStep", &sliceReader{items: seq(15), failAt: -1}, itoaProcessor{}, w, 10, repo)

	require.NoError(t, cs.Execute(context.Background(), je, se))
	assert.Equal(t, [][]string{{"11", "12", "13", "14", "15"}}, w.chunks)
}

func TestChunkStep_ReaderOpenFailureSkipsWriter(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	openErr := exception.NewBatchError("reader", "接続できません", exception.ErrSourceUnavailable, true, false)
	r := &failingReader{openErr: openErr}
	w := &recordingWriter{}
	cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, 10, repo)

	err := cs.Execute(context.Background(), je, se)
	assert.ErrorIs(t, err, exception.ErrSourceUnavailable)
	assert.False(t, w.opened, "Reader が開けない場合 Writer は開かれない")
	assert.Equal(t, core.BatchStatusFailed, se.Status)
}

func TestChunkStep_WriterOpenFailureClosesReader(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	r := &sliceReader{items: seq(3), failAt: -1}
	w := &recordingWriter{openErr: exception.ErrDestinationUnwritable}
	cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, 10, repo)

	err := cs.Execute(context.Background(), je, se)
	assert.ErrorIs(t, err, exception.ErrDestinationUnwritable)
	assert.True(t, r.closed)
	assert.False(t, w.closed)
}

func TestChunkStep_CancelledContextStops(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cs := step.NewChunkStep[int, string]("chunkStep", &sliceReader{items: seq(3), failAt: -1}, itoaProcessor{}, &recordingWriter{}, 10, repo)

	err := cs.Execute(ctx, je, se)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.BatchStatusStopped, se.Status)
}

type countingSkipListener struct{ reads int }

func (l *countingSkipListener) OnSkipRead(ctx context.Context, err error)                      { l.reads++ }
func (l *countingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {}
func (l *countingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error)   {}

type countingRetryListener struct{ reads int }

func (l *countingRetryListener) OnRetryRead(ctx context.Context, err error)                       { l.reads++ }
func (l *countingRetryListener) OnRetryProcess(ctx context.Context, item interface{}, err error)  {}
func (l *countingRetryListener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {}

func TestChunkStep_RetryAndSkip(t *testing.T) {
	t.Run("retry", func(t *testing.T) {
		repo := memory.NewInMemoryJobRepository()
		je, se := newExecutions(t, repo, "chunkStep")
		retryable := exception.NewBatchError("reader", "一時的なエラー", nil, true, false)
		r := &sliceReader{items: seq(3), failAt: 1, failErr: retryable}
		w := &recordingWriter{}
		rl := &countingRetryListener{}
		cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, 10, repo,
			step.WithItemRetry[int, string](config.ItemRetryConfig{MaxAttempts: 2}),
			step.WithRetryItemListeners[int, string](rl),
		)

		require.NoError(t, cs.Execute(context.Background(), je, se))
		assert.Equal(t, [][]string{{"1", "2", "3"}}, w.chunks)
		assert.Equal(t, 1, rl.reads)
	})

	t.Run("skip", func(t *testing.T) {
		repo := memory.NewInMemoryJobRepository()
		je, se := newExecutions(t, repo, "chunkStep")
		r := &sliceReader{items: seq(3), failAt: 1, failErr: errors.New("bad record")}
		w := &recordingWriter{}
		sl := &countingSkipListener{}
		cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, w, 10, repo,
			step.WithItemSkip[int, string](config.ItemSkipConfig{SkipLimit: 1, SkippableExceptions: []string{"bad record"}}),
			step.WithSkipListeners[int, string](sl),
		)

		require.NoError(t, cs.Execute(context.Background(), je, se))
		assert.Equal(t, 1, se.SkipReadCount)
		assert.Equal(t, 1, sl.reads)
		assert.Equal(t, [][]string{{"1", "2", "3"}}, w.chunks)
	})

	t.Run("no retry by default", func(t *testing.T) {
		repo := memory.NewInMemoryJobRepository()
		je, se := newExecutions(t, repo, "chunkStep")
		retryable := exception.NewBatchError("reader", "一時的なエラー", nil, true, false)
		r := &sliceReader{items: seq(3), failAt: 0, failErr: retryable}
		cs := step.NewChunkStep[int, string]("chunkStep", r, itoaProcessor{}, &recordingWriter{}, 10, repo)

		assert.Error(t, cs.Execute(context.Background(), je, se))
	})
}

func TestChunkStep_PromotesOnSuccess(t *testing.T) {
	repo := memory.NewInMemoryJobRepository()
	je, se := newExecutions(t, repo, "chunkStep")
	cs := step.NewChunkStep[int, string]("chunkStep", &sliceReader{items: seq(4), failAt: -1}, itoaProcessor{}, &recordingWriter{}, 10, repo,
		step.WithPromotion[int, string](&core.ExecutionContextPromotion{Keys: []string{sliceReaderKey}}))

	require.NoError(t, cs.Execute(context.Background(), je, se))
	v, ok := je.ExecutionContext.GetNested(sliceReaderKey)
	assert.True(t, ok)
	assert.Equal(t, 4, v)
}
