package processor

import (
	"context"
	"strings"

	config "moviebatch/pkg/batch/config"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"

	"moviebatch/example/movie/domain/entity"
)

// MovieGenreItemProcessor は Movie を MovieGenre に変換する ItemProcessor です。
// 外部の状態を持たない純粋な変換です。
type MovieGenreItemProcessor struct{}

var _ core.ItemProcessor[entity.Movie, entity.MovieGenre] = (*MovieGenreItemProcessor)(nil)

// NewMovieGenreItemProcessor は ComponentBuilder のシグネチャに合わせて引数を受け取りますが、設定は使用しません。
func NewMovieGenreItemProcessor(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*MovieGenreItemProcessor, error) {
	return &MovieGenreItemProcessor{}, nil
}

// Process はタイトルをそのまま、ジャンルをリスト全体の文字列表現にします。
func (p *MovieGenreItemProcessor) Process(ctx context.Context, movie entity.Movie) (entity.MovieGenre, error) {
	return entity.MovieGenre{
		Title: movie.Title,
		Genre: FormatGenres(movie.Genres),
	}, nil
}

// FormatGenres は ["Animation", "Adventure"] を "[Animation, Adventure]" にします。nil や空のリストは "[]" です。
func FormatGenres(genres []string) string {
	return "[" + strings.Join(genres, ", ") + "]"
}
