package exception

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// ジョブが判定に使用する代表的なエラー条件です。
// BatchError の OriginalErr にラップして返し、errors.Is で判定します。
var (
	// ErrSourceUnavailable は入力元 (URL など) に到達できないことを表します。
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedInput は入力データが期待する形式ではないことを表します。
	ErrMalformedInput = errors.New("malformed input")
	// ErrDestinationUnwritable は出力先を作成または書き込みできないことを表します。
	ErrDestinationUnwritable = errors.New("destination unwritable")
	// ErrJobInstanceAlreadyComplete は既に完了した JobInstance を再実行しようとしたことを表します。
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobExecutionAlreadyRunning は実行中の JobInstance を再度起動しようとしたことを表します。
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
	// ErrJobExecutionNotFound は指定された JobExecution が存在しないことを表します。
	ErrJobExecutionNotFound = errors.New("job execution not found")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "reader", "processor", "writer", "config")
	Message     string
	OriginalErr error
	isRetryable bool
	isSkippable bool
	StackTrace  string // デバッグ用
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して新しい BatchError のインスタンスを作成します。
// 引数に error が含まれる場合、最後の error を OriginalErr として保持します。
// 作成されるエラーはリトライ不可、スキップ不可です。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	for i := len(a) - 1; i >= 0; i-- {
		if err, ok := a[i].(error); ok {
			originalErr = err
			break
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil && !strings.Contains(e.Message, e.OriginalErr.Error()) {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// Wrap は sentinel と原因エラーの両方を errors.Is で判定できるエラーを返します。
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// IsTemporary は一時的なエラーかどうかを判定します。
// リトライロジックで利用します。
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsFatal は致命的なエラーかどうかを判定します。
// スキップロジックで利用します。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsSkippable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "data corruption")
}

// IsErrorOfType はエラーが指定された型名またはメッセージ断片に一致するかどうかを判定します。
// errorTypeName は "*net.OpError" のような型名か、"connection refused" のような部分文字列です。
// ラップされたエラーも再帰的にチェックします。
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil || errorTypeName == "" {
		return false
	}

	errType := reflect.TypeOf(err)
	if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
		return true
	}
	if strings.Contains(err.Error(), errorTypeName) {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if IsErrorOfType(inner, errorTypeName) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return IsErrorOfType(u.Unwrap(), errorTypeName)
	}
	return false
}

// MatchesAny はエラーが names のいずれかに一致するかどうかを判定します。
func MatchesAny(err error, names []string) bool {
	for _, name := range names {
		if IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}
