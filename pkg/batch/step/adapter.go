package step

import (
	"context"
	"fmt"

	core "moviebatch/pkg/batch/job/core"
	exception "moviebatch/pkg/batch/util/exception"
)

// JSL から構築するステップは ChunkStep[any, any] を使用するため、
// 型付きのコンポーネントをここで any 型に変換します。
// 型が一致しないアイテムはスキップ可能なエラーになります。

type anyReader[O any] struct {
	delegate core.ItemReader[O]
}

// NewAnyReader は型付きの ItemReader を core.ItemReader[any] に変換します。
func NewAnyReader[O any](r core.ItemReader[O]) core.ItemReader[any] {
	if ar, ok := any(r).(core.ItemReader[any]); ok {
		return ar
	}
	return &anyReader[O]{delegate: r}
}

func (a *anyReader[O]) Open(ctx context.Context, ec core.ExecutionContext) error {
	return a.delegate.Open(ctx, ec)
}

func (a *anyReader[O]) Read(ctx context.Context) (any, error) {
	item, err := a.delegate.Read(ctx)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (a *anyReader[O]) Close(ctx context.Context) error {
	return a.delegate.Close(ctx)
}

func (a *anyReader[O]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return a.delegate.GetExecutionContext(ctx)
}

type anyProcessor[I, O any] struct {
	delegate core.ItemProcessor[I, O]
}

// NewAnyProcessor は型付きの ItemProcessor を core.ItemProcessor[any, any] に変換します。
func NewAnyProcessor[I, O any](p core.ItemProcessor[I, O]) core.ItemProcessor[any, any] {
	if ap, ok := any(p).(core.ItemProcessor[any, any]); ok {
		return ap
	}
	return &anyProcessor[I, O]{delegate: p}
}

func (a *anyProcessor[I, O]) Process(ctx context.Context, item any) (any, error) {
	typed, ok := item.(I)
	if !ok {
		var want I
		return nil, exception.NewBatchError("processor", fmt.Sprintf("アイテムの型 %T を %T に変換できません", item, want), nil, false, true)
	}
	out, err := a.delegate.Process(ctx, typed)
	if err != nil {
		return nil, err
	}
	if isNilOrZero(out) {
		return nil, nil
	}
	return out, nil
}

type anyWriter[I any] struct {
	delegate core.ItemWriter[I]
}

// NewAnyWriter は型付きの ItemWriter を core.ItemWriter[any] に変換します。
func NewAnyWriter[I any](w core.ItemWriter[I]) core.ItemWriter[any] {
	if aw, ok := any(w).(core.ItemWriter[any]); ok {
		return aw
	}
	return &anyWriter[I]{delegate: w}
}

func (a *anyWriter[I]) Open(ctx context.Context, ec core.ExecutionContext) error {
	return a.delegate.Open(ctx, ec)
}

func (a *anyWriter[I]) Write(ctx context.Context, items []any) error {
	typed := make([]I, 0, len(items))
	for _, item := range items {
		t, ok := item.(I)
		if !ok {
			var want I
			return exception.NewBatchError("writer", fmt.Sprintf("アイテムの型 %T を %T に変換できません", item, want), nil, false, true)
		}
		typed = append(typed, t)
	}
	return a.delegate.Write(ctx, typed)
}

func (a *anyWriter[I]) Close(ctx context.Context) error {
	return a.delegate.Close(ctx)
}

func (a *anyWriter[I]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return a.delegate.GetExecutionContext(ctx)
}

// PassThroughProcessor はアイテムを変換せずに返す ItemProcessor です。
// JSL で processor が省略された場合に使用します。
type PassThroughProcessor struct{}

func (PassThroughProcessor) Process(ctx context.Context, item any) (any, error) {
	return item, nil
}
