package movie_config

import (
	"path/filepath"
	"strconv"
	"time"

	config "moviebatch/pkg/batch/config"
	logger "moviebatch/pkg/batch/util/logger"
)

// MovieReaderConfig は MovieJSONItemReader に必要な設定のみを持つ構造体です。
type MovieReaderConfig struct {
	APIEndpoint string
	Timeout     time.Duration
}

// MovieWriterConfig は FlatFileItemWriter に必要な設定のみを持つ構造体です。
type MovieWriterConfig struct {
	OutputPath string
	Delimiter  string
}

// ListDirectoryConfig は ListDirectoryTasklet に必要な設定です。
type ListDirectoryConfig struct {
	Directory string
}

// NewMovieReaderConfig は config の値に JSL の properties (apiEndpoint, httpTimeoutSeconds) を上書きします。
func NewMovieReaderConfig(cfg *config.Config, properties map[string]string) MovieReaderConfig {
	rc := MovieReaderConfig{
		APIEndpoint: cfg.Batch.APIEndpoint,
		Timeout:     time.Duration(cfg.Batch.HTTPTimeoutSeconds) * time.Second,
	}
	if endpoint, ok := properties["apiEndpoint"]; ok && endpoint != "" {
		rc.APIEndpoint = endpoint
	}
	if v, ok := properties["httpTimeoutSeconds"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rc.Timeout = time.Duration(n) * time.Second
		} else {
			logger.Warnf("httpTimeoutSeconds '%s' は不正な値のため無視します。", v)
		}
	}
	return rc
}

// NewMovieWriterConfig は config の値に JSL の properties (outputPath, delimiter) を上書きします。
func NewMovieWriterConfig(cfg *config.Config, properties map[string]string) MovieWriterConfig {
	wc := MovieWriterConfig{
		OutputPath: cfg.Batch.OutputPath,
		Delimiter:  ",",
	}
	if p, ok := properties["outputPath"]; ok && p != "" {
		wc.OutputPath = p
	}
	if d, ok := properties["delimiter"]; ok && d != "" {
		wc.Delimiter = d
	}
	return wc
}

// NewListDirectoryConfig は出力ファイルのディレクトリを既定値とし、properties の directory で上書きします。
func NewListDirectoryConfig(cfg *config.Config, properties map[string]string) ListDirectoryConfig {
	lc := ListDirectoryConfig{Directory: filepath.Dir(cfg.Batch.OutputPath)}
	if d, ok := properties["directory"]; ok && d != "" {
		lc.Directory = d
	}
	return lc
}
