package incrementer

import (
	"fmt"
	"time"

	core "moviebatch/pkg/batch/job/core"
	logger "moviebatch/pkg/batch/util/logger"
)

// TimestampIncrementer はジョブパラメータに現在時刻の Unix ミリ秒を設定する JobParametersIncrementer の実装です。
type TimestampIncrementer struct {
	key string
	now func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer のインスタンスを作成します。key が空の場合は "timestamp" を使用します。
func NewTimestampIncrementer(key string) *TimestampIncrementer {
	if key == "" {
		key = "timestamp"
	}
	return &TimestampIncrementer{key: key, now: time.Now}
}

func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	next := params.Copy()
	timestamp := i.now().UnixMilli()
	next.Put(i.key, timestamp)
	logger.Debugf("JobParametersIncrementer: '%s' を %d に設定しました。", i.key, timestamp)
	return next
}

func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[key=%s]", i.key)
}

var _ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
