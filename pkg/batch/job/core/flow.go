package core

import (
	"fmt"
	"path"
)

// Transition はステップまたは Decision から次の要素への遷移ルールを定義します。
// On は ExitStatus に対するパターンで、"*" や "COMP*" のようなワイルドカードを使用できます。
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}

// TransitionRule は特定の遷移元要素からの単一の遷移ルールを定義します。
type TransitionRule struct {
	From       string
	Transition Transition
}

// FlowDefinition はジョブの実行フロー全体を定義します。
type FlowDefinition struct {
	StartElement    string
	Elements        map[string]FlowElement
	TransitionRules []TransitionRule
}

// NewFlowDefinition は開始要素を指定して FlowDefinition を作成します。
func NewFlowDefinition(startElement string) *FlowDefinition {
	return &FlowDefinition{
		StartElement:    startElement,
		Elements:        make(map[string]FlowElement),
		TransitionRules: make([]TransitionRule, 0),
	}
}

// AddElement はフロー要素を登録します。ID の重複はエラーです。
func (f *FlowDefinition) AddElement(id string, element FlowElement) error {
	if _, exists := f.Elements[id]; exists {
		return fmt.Errorf("フロー要素 '%s' は既に登録されています", id)
	}
	f.Elements[id] = element
	return nil
}

// GetElement は ID に対応するフロー要素を返します。
func (f *FlowDefinition) GetElement(id string) (FlowElement, bool) {
	e, ok := f.Elements[id]
	return e, ok
}

// AddTransitionRule は遷移ルールを追加します。
func (f *FlowDefinition) AddTransitionRule(from string, t Transition) {
	f.TransitionRules = append(f.TransitionRules, TransitionRule{From: from, Transition: t})
}

// FindTransition は遷移元と ExitStatus に一致する遷移を探します。
// 完全一致のルールがワイルドカードより優先されます。
// onError が true の場合、"*" だけのルールはエラーを握りつぶさないよう無視します。
func (f *FlowDefinition) FindTransition(from string, status ExitStatus, onError bool) (Transition, bool) {
	var wildcard *Transition
	for i := range f.TransitionRules {
		rule := f.TransitionRules[i]
		if rule.From != from {
			continue
		}
		on := rule.Transition.On
		if on == string(status) {
			return rule.Transition, true
		}
		if onError && on == "*" {
			continue
		}
		if wildcard == nil {
			if matched, err := path.Match(on, string(status)); err == nil && matched {
				t := rule.Transition
				wildcard = &t
			}
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Transition{}, false
}

// ExecutionContextPromotion は StepExecutionContext から JobExecutionContext へのプロモーション設定を定義します。
type ExecutionContextPromotion struct {
	Keys         []string          `yaml:"keys,omitempty"`
	JobLevelKeys map[string]string `yaml:"job-level-keys,omitempty"`
}

// Promote はステップの ExecutionContext から設定されたキーを JobExecutionContext にコピーします。
func (p *ExecutionContextPromotion) Promote(stepEC, jobEC ExecutionContext) {
	if p == nil || stepEC == nil || jobEC == nil {
		return
	}
	for _, key := range p.Keys {
		if v, ok := stepEC.GetNested(key); ok {
			target := key
			if mapped, ok := p.JobLevelKeys[key]; ok && mapped != "" {
				target = mapped
			}
			jobEC.PutNested(target, v)
		}
	}
}

// concreteSplit は Split インターフェースの具体的な実装です。
type concreteSplit struct {
	id    string
	steps []Step
}

// NewConcreteSplit は新しい concreteSplit インスタンスを作成し、Split インターフェースとして返します。
func NewConcreteSplit(id string, steps []Step) Split {
	return &concreteSplit{
		id:    id,
		steps: steps,
	}
}

func (s *concreteSplit) ID() string {
	return s.id
}

func (s *concreteSplit) Steps() []Step {
	return s.steps
}
