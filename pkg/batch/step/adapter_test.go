package step_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/step"
	"moviebatch/pkg/batch/util/exception"
)

func TestNewAnyReader(t *testing.T) {
	r := step.NewAnyReader[int](&sliceReader{items: []int{7}, failAt: -1})
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, core.NewExecutionContext()))

	v, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	n, _ := ec.GetInt(sliceReaderKey)
	assert.Equal(t, 1, n)
	require.NoError(t, r.Close(ctx))

	// 既に any 型のものはそのまま返す
	assert.Same(t, r, step.NewAnyReader[any](r))
}

func TestNewAnyProcessor(t *testing.T) {
	p := step.NewAnyProcessor[int, string](itoaProcessor{})
	ctx := context.Background()

	out, err := p.Process(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	// ゼロ値は nil に変換してフィルタ対象にする
	out, err = p.Process(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = p.Process(ctx, "not an int")
	var be *exception.BatchError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.IsSkippable())
}

func TestNewAnyWriter(t *testing.T) {
	rw := &recordingWriter{}
	w := step.NewAnyWriter[string](rw)
	ctx := context.Background()

	require.NoError(t, w.Open(ctx, nil))
	require.NoError(t, w.Write(ctx, []any{"a", "b"}))
	assert.Equal(t, [][]string{{"a", "b"}}, rw.chunks)

	err := w.Write(ctx, []any{"a", 1})
	var be *exception.BatchError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.IsSkippable())
	assert.Len(t, rw.chunks, 1, "型が一致しないチャンクは書き込まない")

	require.NoError(t, w.Close(ctx))
	assert.True(t, rw.closed)
}

func TestPassThroughProcessor(t *testing.T) {
	out, err := step.PassThroughProcessor{}.Process(context.Background(), "movie")
	require.NoError(t, err)
	assert.Equal(t, "movie", out)
}
