package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExecutionContext はジョブやステップの状態を共有するためのキー-値ストアです。
// 値は永続化の際に JSON を経由するため、数値は float64 として戻ることがあります。
type ExecutionContext map[string]interface{}

// NewExecutionContext は空の ExecutionContext を作成します。
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString は文字列値を返します。
func (ec ExecutionContext) GetString(key string) (string, bool) {
	v, ok := ec[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt は整数値を返します。JSON のラウンドトリップで float64 になった値も扱います。
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	n, ok := ec.GetInt64(key)
	return int(n), ok
}

// GetInt64 は int64 値を返します。
func (ec ExecutionContext) GetInt64(key string) (int64, bool) {
	v, ok := ec[key]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// GetBool は真偽値を返します。
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	v, ok := ec[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetNested はドット区切りのキーで値を取得します。
// キーそのものが存在する場合はそれを優先します。
func (ec ExecutionContext) GetNested(key string) (interface{}, bool) {
	if v, ok := ec[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	var current interface{} = map[string]interface{}(ec)
	for _, p := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// PutNested はドット区切りのキーで値を設定し、途中のマップを作成します。
func (ec ExecutionContext) PutNested(key string, value interface{}) {
	parts := strings.Split(key, ".")
	current := map[string]interface{}(ec)
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(current[p])
		if !ok {
			next = make(map[string]interface{})
			current[p] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// Copy はネストしたマップを含めて ExecutionContext を複製します。
func (ec ExecutionContext) Copy() ExecutionContext {
	if ec == nil {
		return NewExecutionContext()
	}
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case ExecutionContext:
		return t.Copy()
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = copyValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = copyValue(inner)
		}
		return s
	default:
		return v
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case ExecutionContext:
		return t, true
	default:
		return nil, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
