package entity

// Movie は映画データセットの1レコードです。
// データセットに含まれるその他のフィールドはデコード時に無視されます。
type Movie struct {
	Title  string   `json:"title"`
	Year   int      `json:"year"`
	Cast   []string `json:"cast"`
	Genres []string `json:"genres"`
}

// MovieGenre は CSV に書き出すタイトルとジャンルの組です。
// Genre はジャンルのリスト全体を "[Animation, Adventure]" の形式で表した文字列です。
type MovieGenre struct {
	Title string
	Genre string
}
