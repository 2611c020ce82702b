package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// JobParameters はジョブ実行時のパラメータを保持する構造体です。
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters は空の JobParameters を作成します。
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

func (p *JobParameters) Put(key string, value interface{}) {
	if p.Params == nil {
		p.Params = make(map[string]interface{})
	}
	p.Params[key] = value
}

func (p JobParameters) Get(key string) (interface{}, bool) {
	v, ok := p.Params[key]
	return v, ok
}

func (p JobParameters) GetString(key string) (string, bool) {
	v, ok := p.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt は整数値を返します。永続化後の float64 も扱います。
func (p JobParameters) GetInt(key string) (int, bool) {
	v, ok := p.Params[key]
	if !ok {
		return 0, false
	}
	n, ok := toInt64(v)
	return int(n), ok
}

// IsEmpty はパラメータが一つも無いかどうかを返します。
func (p JobParameters) IsEmpty() bool {
	return len(p.Params) == 0
}

// Copy は JobParameters の浅いコピーを返します。
func (p JobParameters) Copy() JobParameters {
	out := NewJobParameters()
	for k, v := range p.Params {
		out.Params[k] = v
	}
	return out
}

// Hash は JobInstance の識別に使うパラメータのハッシュを返します。
// encoding/json はマップのキーをソートして出力するため、同じ内容からは同じ値になります。
func (p JobParameters) Hash() (string, error) {
	params := p.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	data, err := json.Marshal(normalizeParams(params))
	if err != nil {
		return "", fmt.Errorf("JobParameters のハッシュ計算に失敗しました: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeParams は数値型の違い (int と float64) がハッシュに影響しないよう揃えます。
func normalizeParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		switch n := v.(type) {
		case int, int32, int64:
			i, _ := toInt64(n)
			out[k] = i
		case float64:
			if n == math.Trunc(n) {
				out[k] = int64(n)
			} else {
				out[k] = n
			}
		default:
			out[k] = v
		}
	}
	return out
}
