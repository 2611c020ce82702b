package jsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

// ParseJobDefinition は単一の JSL YAML をパースし、必須項目を検証します。
func ParseJobDefinition(data []byte) (Job, error) {
	var jobDef Job
	if err := yaml.Unmarshal(data, &jobDef); err != nil {
		return Job{}, exception.NewBatchError("jsl_loader", "JSL ファイルのパースに失敗しました", err, false, false)
	}

	if jobDef.ID == "" {
		return Job{}, exception.NewBatchError("jsl_loader", "JSL ファイルに 'id' が定義されていません", nil, false, false)
	}
	if jobDef.Name == "" {
		jobDef.Name = jobDef.ID
	}
	if jobDef.Flow.StartElement == "" {
		return Job{}, exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のフローに 'start-element' が定義されていません", jobDef.ID), nil, false, false)
	}
	if len(jobDef.Flow.Elements) == 0 {
		return Job{}, exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のフローに 'elements' が定義されていません", jobDef.ID), nil, false, false)
	}
	if _, ok := jobDef.Flow.Elements[jobDef.Flow.StartElement]; !ok {
		return Job{}, exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' の 'start-element' '%s' が 'elements' に見つかりません", jobDef.ID, jobDef.Flow.StartElement), nil, false, false)
	}

	logger.Debugf("JSL ジョブ '%s' をパースしました。要素数: %d", jobDef.ID, len(jobDef.Flow.Elements))
	return jobDef, nil
}

// Definitions はロード済みの JSL ジョブ定義を ID ごとに保持します。
type Definitions map[string]Job

// LoadFromBytes は JSL YAML をパースして Definitions に追加します。ID の重複はエラーです。
func (d Definitions) LoadFromBytes(data []byte) error {
	jobDef, err := ParseJobDefinition(data)
	if err != nil {
		return err
	}
	if _, exists := d[jobDef.ID]; exists {
		return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブID '%s' が重複しています", jobDef.ID), nil, false, false)
	}
	d[jobDef.ID] = jobDef
	logger.Infof("JSL ジョブ '%s' をロードしました。ロード済みジョブ数: %d", jobDef.ID, len(d))
	return nil
}

// Get は ID に対応するジョブ定義を返します。
func (d Definitions) Get(jobID string) (Job, bool) {
	j, ok := d[jobID]
	return j, ok
}
