package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"

	movie_config "moviebatch/example/movie/config"
	"moviebatch/example/movie/domain/entity"
)

const (
	readerModule = "movie_json_reader"
	// ReadCountKey は再起動のために読み込み済み件数を保存する ExecutionContext のキーです。
	ReadCountKey = "movieJsonItemReader.read.count"
)

// MovieJSONItemReader は HTTP で取得した JSON 配列から Movie を1件ずつデコードする ItemReader です。
// レスポンス全体をメモリに載せず、json.Decoder で要素ごとに読み進めます。
type MovieJSONItemReader struct {
	config movie_config.MovieReaderConfig
	client *http.Client

	body      io.ReadCloser
	decoder   *json.Decoder
	readCount int
	done      bool
}

var _ core.ItemReader[entity.Movie] = (*MovieJSONItemReader)(nil)

// NewMovieJSONItemReader は ComponentBuilder のシグネチャに合わせて設定を受け取ります。
// JSL の properties "apiEndpoint" と "httpTimeoutSeconds" は config の値より優先されます。
func NewMovieJSONItemReader(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*MovieJSONItemReader, error) {
	rc := movie_config.NewMovieReaderConfig(cfg, properties)
	if rc.APIEndpoint == "" {
		return nil, exception.NewBatchError(readerModule, "api_endpoint が設定されていません", nil, false, false)
	}
	return &MovieJSONItemReader{
		config: rc,
		client: &http.Client{Timeout: rc.Timeout},
	}, nil
}

// Open はデータセットを要求し、JSON 配列の先頭まで読み進めます。
// 再起動時は ExecutionContext に保存された件数だけ先頭の要素を読み飛ばします。
func (r *MovieJSONItemReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	skip := 0
	if ec != nil {
		if n, ok := ec.GetInt(ReadCountKey); ok {
			skip = n
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.APIEndpoint, nil)
	if err != nil {
		return exception.NewBatchError(readerModule, "HTTPリクエストの作成に失敗しました", exception.Wrap(exception.ErrSourceUnavailable, err), false, false)
	}
	req.Header.Set("Accept", "application/json")

	logger.Debugf("MovieJSONItemReader: '%s' からデータセットを取得します。", r.config.APIEndpoint)
	resp, err := r.client.Do(req)
	if err != nil {
		return exception.NewBatchError(readerModule, fmt.Sprintf("'%s' に接続できません", r.config.APIEndpoint), exception.Wrap(exception.ErrSourceUnavailable, err), true, false)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return exception.NewBatchError(readerModule,
			fmt.Sprintf("'%s' からエラーレスポンスが返されました: ステータスコード %d", r.config.APIEndpoint, resp.StatusCode),
			exception.ErrSourceUnavailable, true, false)
	}

	r.body = resp.Body
	r.decoder = json.NewDecoder(resp.Body)
	r.readCount = 0
	r.done = false

	tok, err := r.decoder.Token()
	if err != nil {
		return exception.NewBatchError(readerModule, "JSON の先頭を読み込めません", exception.Wrap(exception.ErrMalformedInput, err), false, false)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return exception.NewBatchError(readerModule, fmt.Sprintf("JSON 配列ではありません (先頭トークン: %v)", tok), exception.ErrMalformedInput, false, false)
	}

	for r.readCount < skip {
		if _, err := r.Read(ctx); err != nil {
			if err == io.EOF {
				logger.Warnf("MovieJSONItemReader: 再開位置 %d がデータセットの件数 %d を超えています。", skip, r.readCount)
				return nil
			}
			return err
		}
	}
	if skip > 0 {
		logger.Infof("MovieJSONItemReader: 前回の実行で読み込み済みの %d 件を読み飛ばしました。", skip)
	}
	return nil
}

// Read は次の Movie を返します。配列の終端では io.EOF を返します。
func (r *MovieJSONItemReader) Read(ctx context.Context) (entity.Movie, error) {
	if err := ctx.Err(); err != nil {
		return entity.Movie{}, err
	}
	if r.decoder == nil {
		return entity.Movie{}, exception.NewBatchError(readerModule, "Open が呼び出されていません", nil, false, false)
	}
	if r.done {
		return entity.Movie{}, io.EOF
	}

	if !r.decoder.More() {
		tok, err := r.decoder.Token()
		if err != nil {
			return entity.Movie{}, exception.NewBatchError(readerModule, "JSON 配列の終端を読み込めません", exception.Wrap(exception.ErrMalformedInput, err), false, false)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != ']' {
			return entity.Movie{}, exception.NewBatchError(readerModule, fmt.Sprintf("JSON 配列の終端が不正です (トークン: %v)", tok), exception.ErrMalformedInput, false, false)
		}
		r.done = true
		logger.Debugf("MovieJSONItemReader: %d 件を読み込みました。", r.readCount)
		return entity.Movie{}, io.EOF
	}

	var movie entity.Movie
	if err := r.decoder.Decode(&movie); err != nil {
		return entity.Movie{}, exception.NewBatchError(readerModule,
			fmt.Sprintf("%d 件目のレコードのデコードに失敗しました", r.readCount+1),
			exception.Wrap(exception.ErrMalformedInput, err), false, false)
	}
	r.readCount++
	return movie, nil
}

// Close はレスポンスボディを閉じます。
func (r *MovieJSONItemReader) Close(ctx context.Context) error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	r.decoder = nil
	if err != nil {
		return exception.NewBatchError(readerModule, "レスポンスボディのクローズに失敗しました", err, false, false)
	}
	return nil
}

// GetExecutionContext は読み込み済み件数を返します。
func (r *MovieJSONItemReader) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	ec.Put(ReadCountKey, r.readCount)
	return ec, nil
}
