package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"

	movie_config "moviebatch/example/movie/config"
	"moviebatch/example/movie/domain/entity"
)

const writerModule = "flat_file_writer"

const (
	currentCountSuffix = ".current.count"
	writtenSuffix      = ".written"
)

// FieldExtractor はアイテムを出力するフィールドの並びに変換します。
type FieldExtractor[T any] func(item T) []string

// FlatFileItemWriter はアイテムを区切り文字で連結した行としてファイルに書き出す ItemWriter です。
// ヘッダは出力せず、フィールドのエスケープも行いません。
// 書き込んだバイト数を ExecutionContext に保存し、再起動時はその位置まで切り詰めて追記します。
type FlatFileItemWriter[T any] struct {
	name      string
	path      string
	delimiter string
	extract   FieldExtractor[T]

	file    *os.File
	buf     *bufio.Writer
	offset  int64
	written int
}

// NewFlatFileItemWriter は新しい FlatFileItemWriter を作成します。
// name は ExecutionContext のキーの接頭辞に使われます。
func NewFlatFileItemWriter[T any](name, path, delimiter string, extract FieldExtractor[T]) *FlatFileItemWriter[T] {
	return &FlatFileItemWriter[T]{
		name:      name,
		path:      path,
		delimiter: delimiter,
		extract:   extract,
	}
}

// NewMovieGenreWriter は MovieGenre を "title,genre" の行として書き出す FlatFileItemWriter を作成します。
// JSL の properties "outputPath" と "delimiter" は config の値より優先されます。
func NewMovieGenreWriter(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*FlatFileItemWriter[entity.MovieGenre], error) {
	wc := movie_config.NewMovieWriterConfig(cfg, properties)
	if wc.OutputPath == "" {
		return nil, exception.NewBatchError(writerModule, "output_path が設定されていません", nil, false, false)
	}
	return NewFlatFileItemWriter("movieGenreWriter", wc.OutputPath, wc.Delimiter, func(mg entity.MovieGenre) []string {
		return []string{mg.Title, mg.Genre}
	}), nil
}

func (w *FlatFileItemWriter[T]) currentCountKey() string { return w.name + currentCountSuffix }
func (w *FlatFileItemWriter[T]) writtenKey() string      { return w.name + writtenSuffix }

// Open は出力先ディレクトリを作成してファイルを開きます。
// ExecutionContext に書き込み位置があれば再起動とみなし、その位置から追記します。
func (w *FlatFileItemWriter[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exception.NewBatchError(writerModule, fmt.Sprintf("出力ディレクトリ '%s' を作成できません", dir), exception.Wrap(exception.ErrDestinationUnwritable, err), false, false)
		}
	}

	var restartOffset int64 = -1
	if ec != nil {
		if off, ok := ec.GetInt64(w.currentCountKey()); ok {
			restartOffset = off
			w.written, _ = ec.GetInt(w.writtenKey())
		}
	}

	var (
		f   *os.File
		err error
	)
	if restartOffset >= 0 {
		f, err = os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE, 0o644)
		if err == nil {
			err = restoreOffset(f, restartOffset)
		}
	} else {
		f, err = os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		restartOffset = 0
		w.written = 0
	}
	if err != nil {
		if f != nil {
			f.Close()
		}
		return exception.NewBatchError(writerModule, fmt.Sprintf("出力ファイル '%s' を開けません", w.path), exception.Wrap(exception.ErrDestinationUnwritable, err), false, false)
	}

	w.file = f
	w.buf = bufio.NewWriter(f)
	w.offset = restartOffset
	if restartOffset > 0 {
		logger.Infof("FlatFileItemWriter: '%s' の %d バイト目 (%d 行) から追記を再開します。", w.path, restartOffset, w.written)
	}
	return nil
}

// restoreOffset は前回コミットした位置より後ろの書きかけのデータを捨てます。
func restoreOffset(f *os.File, offset int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < offset {
		return fmt.Errorf("ファイルサイズ %d が再開位置 %d より小さいです", info.Size(), offset)
	}
	if err := f.Truncate(offset); err != nil {
		return err
	}
	_, err = f.Seek(offset, io.SeekStart)
	return err
}

// Write はアイテムを1行ずつ書き出し、チャンクの終わりでフラッシュします。
func (w *FlatFileItemWriter[T]) Write(ctx context.Context, items []T) error {
	if w.buf == nil {
		return exception.NewBatchError(writerModule, "Open が呼び出されていません", nil, false, false)
	}
	for _, item := range items {
		fields := w.extract(item)
		for _, field := range fields {
			if strings.Contains(field, w.delimiter) {
				logger.Warnf("FlatFileItemWriter: フィールド '%s' に区切り文字 '%s' が含まれていますが、エスケープせずに出力します。", field, w.delimiter)
			}
		}
		line := strings.Join(fields, w.delimiter) + "\n"
		n, err := w.buf.WriteString(line)
		w.offset += int64(n)
		if err != nil {
			return exception.NewBatchError(writerModule, fmt.Sprintf("'%s' への書き込みに失敗しました", w.path), exception.Wrap(exception.ErrDestinationUnwritable, err), false, false)
		}
		w.written++
	}
	if err := w.buf.Flush(); err != nil {
		return exception.NewBatchError(writerModule, fmt.Sprintf("'%s' のフラッシュに失敗しました", w.path), exception.Wrap(exception.ErrDestinationUnwritable, err), false, false)
	}
	return nil
}

// Close はバッファをフラッシュしてファイルを閉じます。
func (w *FlatFileItemWriter[T]) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	var err error
	if ferr := w.buf.Flush(); ferr != nil {
		err = ferr
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	w.file = nil
	w.buf = nil
	if err != nil {
		return exception.NewBatchError(writerModule, fmt.Sprintf("'%s' のクローズに失敗しました", w.path), exception.Wrap(exception.ErrDestinationUnwritable, err), false, false)
	}
	logger.Debugf("FlatFileItemWriter: '%s' に %d 行を書き込みました。", w.path, w.written)
	return nil
}

// GetExecutionContext は書き込み位置と書き込み済み行数を返します。
func (w *FlatFileItemWriter[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put(w.currentCountKey(), w.offset)
	ec.Put(w.writtenKey(), w.written)
	return ec, nil
}
