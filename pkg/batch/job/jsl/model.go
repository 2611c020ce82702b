package jsl

import (
	"gopkg.in/yaml.v3"

	core "moviebatch/pkg/batch/job/core"
)

// Job は JSL ファイルのトップレベル構造です。
type Job struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Flow        Flow           `yaml:"flow"`
	Listeners   []ComponentRef `yaml:"listeners,omitempty"`
	Incrementer ComponentRef   `yaml:"incrementer,omitempty"`
}

// Flow はフロー要素とその開始要素を定義します。
// Elements の各値は Step / Decision / Split のいずれかとして解釈されます。
type Flow struct {
	StartElement string               `yaml:"start-element"`
	Elements     map[string]yaml.Node `yaml:"elements"`
}

// Step はジョブ内の単一の処理単位です。
// チャンク指向 (reader/processor/writer + chunk) か Tasklet 指向のどちらか一方を持ちます。
type Step struct {
	ID                        string                          `yaml:"id"`
	Description               string                          `yaml:"description,omitempty"`
	Reader                    ComponentRef                    `yaml:"reader,omitempty"`
	Processor                 ComponentRef                    `yaml:"processor,omitempty"`
	Writer                    ComponentRef                    `yaml:"writer,omitempty"`
	Chunk                     *Chunk                          `yaml:"chunk,omitempty"`
	Tasklet                   ComponentRef                    `yaml:"tasklet,omitempty"`
	Transitions               []core.Transition               `yaml:"transitions,omitempty"`
	Listeners                 []ComponentRef                  `yaml:"listeners,omitempty"`
	ChunkListeners            []ComponentRef                  `yaml:"chunk-listeners,omitempty"`
	ItemReadListeners         []ComponentRef                  `yaml:"item-read-listeners,omitempty"`
	ItemProcessListeners      []ComponentRef                  `yaml:"item-process-listeners,omitempty"`
	ItemWriteListeners        []ComponentRef                  `yaml:"item-write-listeners,omitempty"`
	SkipListeners             []ComponentRef                  `yaml:"skip-listeners,omitempty"`
	RetryItemListeners        []ComponentRef                  `yaml:"retry-item-listeners,omitempty"`
	ExecutionContextPromotion *core.ExecutionContextPromotion `yaml:"execution-context-promotion,omitempty"`
}

// ComponentRef は Registry に登録されたビルダーへの参照です。
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Chunk はチャンク指向処理の設定です。
type Chunk struct {
	ItemCount int `yaml:"item-count"`
	// CommitInterval は ItemCount が未指定の場合に使われます。
	CommitInterval int `yaml:"commit-interval"`
}

// Size はチャンクサイズを返します。
func (c *Chunk) Size() int {
	if c == nil {
		return 0
	}
	if c.ItemCount > 0 {
		return c.ItemCount
	}
	return c.CommitInterval
}

// Decision はフロー内の条件分岐です。
// Decider が未指定の場合は Properties を使う core.ConditionalDecision になります。
type Decision struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Decider     ComponentRef      `yaml:"decider,omitempty"`
	Properties  map[string]string `yaml:"properties,omitempty"`
	Transitions []core.Transition `yaml:"transitions"`
}

// Split は並行に実行されるステップの集まりです。
type Split struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Steps       []Step            `yaml:"steps"`
	Transitions []core.Transition `yaml:"transitions,omitempty"`
}

// elementKind は要素の種類を判定するためだけに使います。
type elementKind struct {
	Type    string       `yaml:"type"`
	Reader  ComponentRef `yaml:"reader"`
	Tasklet ComponentRef `yaml:"tasklet"`
	Steps   []yaml.Node  `yaml:"steps"`
}

const (
	kindStep     = "step"
	kindDecision = "decision"
	kindSplit    = "split"
)

func (k elementKind) resolve() string {
	switch {
	case k.Type != "":
		return k.Type
	case k.Reader.Ref != "" || k.Tasklet.Ref != "":
		return kindStep
	case len(k.Steps) > 0:
		return kindSplit
	default:
		return kindDecision
	}
}
