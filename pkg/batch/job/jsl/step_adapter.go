package jsl

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	config "moviebatch/pkg/batch/config"
	component "moviebatch/pkg/batch/job/component"
	core "moviebatch/pkg/batch/job/core"
	"moviebatch/pkg/batch/repository/job"
	step "moviebatch/pkg/batch/step"
	exception "moviebatch/pkg/batch/util/exception"
	logger "moviebatch/pkg/batch/util/logger"
)

const converterModule = "jsl_converter"

// ConvertJSLToCoreFlow は JSL の Flow 定義を core.FlowDefinition に変換します。
// ref は registry に登録されたビルダーで解決され、cfg と JSL の properties が各ビルダーに渡されます。
func ConvertJSLToCoreFlow(
	jslFlow Flow,
	registry *component.Registry,
	jobRepository job.JobRepository,
	cfg *config.Config,
) (*core.FlowDefinition, error) {
	if _, ok := jslFlow.Elements[jslFlow.StartElement]; !ok {
		return nil, exception.NewBatchErrorf(converterModule, "フローの 'start-element' '%s' が 'elements' に見つかりません", jslFlow.StartElement)
	}

	c := &converter{registry: registry, repo: jobRepository, cfg: cfg}
	flowDef := core.NewFlowDefinition(jslFlow.StartElement)

	for id, node := range jslFlow.Elements {
		var kind elementKind
		if err := node.Decode(&kind); err != nil {
			return nil, exception.NewBatchError(converterModule, fmt.Sprintf("フロー要素 '%s' の解析に失敗しました", id), err, false, false)
		}

		var (
			element     core.FlowElement
			transitions []core.Transition
			err         error
		)
		switch kind.resolve() {
		case kindStep:
			var s Step
			if err := node.Decode(&s); err != nil {
				return nil, exception.NewBatchError(converterModule, fmt.Sprintf("ステップ '%s' の解析に失敗しました", id), err, false, false)
			}
			if s.ID != "" && s.ID != id {
				return nil, exception.NewBatchErrorf(converterModule, "ステップ '%s' のIDがマップのキー '%s' と一致しません", s.ID, id)
			}
			s.ID = id
			element, err = c.buildStep(s)
			transitions = s.Transitions
		case kindDecision:
			element, transitions, err = c.buildDecision(id, node)
		case kindSplit:
			element, transitions, err = c.buildSplit(id, node)
		default:
			err = exception.NewBatchErrorf(converterModule, "フロー要素 '%s' の type '%s' は不明です", id, kind.Type)
		}
		if err != nil {
			return nil, err
		}

		if err := flowDef.AddElement(id, element); err != nil {
			return nil, exception.NewBatchError(converterModule, fmt.Sprintf("フローに要素 '%s' を追加できませんでした", id), err, false, false)
		}
		for _, t := range transitions {
			if err := validateTransition(id, t, jslFlow.Elements); err != nil {
				return nil, err
			}
			flowDef.AddTransitionRule(id, t)
		}
	}

	return flowDef, nil
}

type converter struct {
	registry *component.Registry
	repo     job.JobRepository
	cfg      *config.Config
}

func (c *converter) buildComponent(kind string, ref ComponentRef) (any, error) {
	builder, ok := c.registry.ComponentBuilder(ref.Ref)
	if !ok {
		return nil, exception.NewBatchErrorf(converterModule, "%s '%s' のビルダーが見つかりません", kind, ref.Ref)
	}
	instance, err := builder(c.cfg, c.repo, ref.Properties)
	if err != nil {
		return nil, exception.NewBatchError(converterModule, fmt.Sprintf("%s '%s' のビルドに失敗しました", kind, ref.Ref), err, false, false)
	}
	return instance, nil
}

// buildListeners は ref のリストを lookup で解決してリスナーを生成します。
func buildListeners[L any, B ~func(*config.Config) (L, error)](cfg *config.Config, kind string, refs []ComponentRef, lookup func(string) (B, bool)) ([]L, error) {
	var out []L
	for _, ref := range refs {
		builder, ok := lookup(ref.Ref)
		if !ok {
			return nil, exception.NewBatchErrorf(converterModule, "%s '%s' のビルダーが登録されていません", kind, ref.Ref)
		}
		l, err := builder(cfg)
		if err != nil {
			return nil, exception.NewBatchError(converterModule, fmt.Sprintf("%s '%s' のビルドに失敗しました", kind, ref.Ref), err, false, false)
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *converter) buildStep(s Step) (core.Step, error) {
	stepListeners, err := buildListeners(c.cfg, "StepExecutionListener", s.Listeners, c.registry.StepExecutionListenerBuilder)
	if err != nil {
		return nil, err
	}

	if s.Tasklet.Ref != "" {
		if s.Reader.Ref != "" || s.Writer.Ref != "" {
			return nil, exception.NewBatchErrorf(converterModule, "ステップ '%s' はチャンクとタスクレットを同時に定義できません", s.ID)
		}
		instance, err := c.buildComponent("タスクレット", s.Tasklet)
		if err != nil {
			return nil, err
		}
		t, ok := instance.(core.Tasklet)
		if !ok {
			return nil, exception.NewBatchErrorf(converterModule, "タスクレット '%s' の型が不正です (期待: core.Tasklet, 実際: %s)", s.Tasklet.Ref, reflect.TypeOf(instance))
		}
		logger.Debugf("タスクレットステップ '%s' を構築しました。", s.ID)
		return step.NewTaskletStep(s.ID, t, c.repo, stepListeners, s.ExecutionContextPromotion), nil
	}

	if s.Reader.Ref == "" || s.Writer.Ref == "" {
		return nil, exception.NewBatchErrorf(converterModule, "チャンクステップ '%s' には reader と writer が必要です", s.ID)
	}
	chunkSize := s.Chunk.Size()
	if chunkSize <= 0 {
		chunkSize = c.cfg.Batch.ChunkSize
	}
	if chunkSize <= 0 {
		return nil, exception.NewBatchErrorf(converterModule, "チャンクステップ '%s' の chunk.item-count は 1 以上である必要があります", s.ID)
	}

	readerInstance, err := c.buildComponent("リーダー", s.Reader)
	if err != nil {
		return nil, err
	}
	r, ok := readerInstance.(core.ItemReader[any])
	if !ok {
		return nil, exception.NewBatchErrorf(converterModule, "リーダー '%s' の型が不正です (期待: ItemReader[any], 実際: %s)", s.Reader.Ref, reflect.TypeOf(readerInstance))
	}

	var p core.ItemProcessor[any, any] = step.PassThroughProcessor{}
	if s.Processor.Ref != "" {
		processorInstance, err := c.buildComponent("プロセッサ", s.Processor)
		if err != nil {
			return nil, err
		}
		p, ok = processorInstance.(core.ItemProcessor[any, any])
		if !ok {
			return nil, exception.NewBatchErrorf(converterModule, "プロセッサ '%s' の型が不正です (期待: ItemProcessor[any, any], 実際: %s)", s.Processor.Ref, reflect.TypeOf(processorInstance))
		}
	}

	writerInstance, err := c.buildComponent("ライター", s.Writer)
	if err != nil {
		return nil, err
	}
	w, ok := writerInstance.(core.ItemWriter[any])
	if !ok {
		return nil, exception.NewBatchErrorf(converterModule, "ライター '%s' の型が不正です (期待: ItemWriter[any], 実際: %s)", s.Writer.Ref, reflect.TypeOf(writerInstance))
	}

	chunkListeners, err := buildListeners(c.cfg, "ChunkListener", s.ChunkListeners, c.registry.ChunkListenerBuilder)
	if err != nil {
		return nil, err
	}
	readListeners, err := buildListeners(c.cfg, "ItemReadListener", s.ItemReadListeners, c.registry.ItemReadListenerBuilder)
	if err != nil {
		return nil, err
	}
	processListeners, err := buildListeners(c.cfg, "ItemProcessListener", s.ItemProcessListeners, c.registry.ItemProcessListenerBuilder)
	if err != nil {
		return nil, err
	}
	writeListeners, err := buildListeners(c.cfg, "ItemWriteListener", s.ItemWriteListeners, c.registry.ItemWriteListenerBuilder)
	if err != nil {
		return nil, err
	}
	skipListeners, err := buildListeners(c.cfg, "SkipListener", s.SkipListeners, c.registry.SkipListenerBuilder)
	if err != nil {
		return nil, err
	}
	retryListeners, err := buildListeners(c.cfg, "RetryItemListener", s.RetryItemListeners, c.registry.RetryItemListenerBuilder)
	if err != nil {
		return nil, err
	}

	cs := step.NewChunkStep[any, any](
		s.ID, r, p, w, chunkSize, c.repo,
		step.WithStepListeners[any, any](stepListeners...),
		step.WithChunkListeners[any, any](chunkListeners...),
		step.WithItemReadListeners[any, any](readListeners...),
		step.WithItemProcessListeners[any, any](processListeners...),
		step.WithItemWriteListeners[any, any](writeListeners...),
		step.WithSkipListeners[any, any](skipListeners...),
		step.WithRetryItemListeners[any, any](retryListeners...),
		step.WithItemRetry[any, any](c.cfg.Batch.ItemRetry),
		step.WithItemSkip[any, any](c.cfg.Batch.ItemSkip),
		step.WithPromotion[any, any](s.ExecutionContextPromotion),
	)
	logger.Debugf("チャンクステップ '%s' を構築しました。チャンクサイズ: %d", s.ID, chunkSize)
	return cs, nil
}

func (c *converter) buildDecision(id string, node yaml.Node) (core.Decision, []core.Transition, error) {
	var d Decision
	if err := node.Decode(&d); err != nil {
		return nil, nil, exception.NewBatchError(converterModule, fmt.Sprintf("デシジョン '%s' の解析に失敗しました", id), err, false, false)
	}
	if d.ID != "" && d.ID != id {
		return nil, nil, exception.NewBatchErrorf(converterModule, "デシジョン '%s' のIDがマップのキー '%s' と一致しません", d.ID, id)
	}
	if len(d.Transitions) == 0 {
		return nil, nil, exception.NewBatchErrorf(converterModule, "デシジョン '%s' に遷移ルールが定義されていません", id)
	}

	if d.Decider.Ref != "" {
		instance, err := c.buildComponent("デシジョン", d.Decider)
		if err != nil {
			return nil, nil, err
		}
		decision, ok := instance.(core.Decision)
		if !ok {
			return nil, nil, exception.NewBatchErrorf(converterModule, "デシジョン '%s' の型が不正です (期待: core.Decision, 実際: %s)", d.Decider.Ref, reflect.TypeOf(instance))
		}
		if decision.ID() != id {
			return nil, nil, exception.NewBatchErrorf(converterModule, "デシジョン '%s' のIDがマップのキー '%s' と一致しません", decision.ID(), id)
		}
		return decision, d.Transitions, nil
	}

	decision := core.NewConditionalDecision(id)
	decision.SetProperties(d.Properties)
	logger.Debugf("Decision '%s' を構築しました。", id)
	return decision, d.Transitions, nil
}

func (c *converter) buildSplit(id string, node yaml.Node) (core.Split, []core.Transition, error) {
	var sp Split
	if err := node.Decode(&sp); err != nil {
		return nil, nil, exception.NewBatchError(converterModule, fmt.Sprintf("Split '%s' の解析に失敗しました", id), err, false, false)
	}
	if len(sp.Steps) == 0 {
		return nil, nil, exception.NewBatchErrorf(converterModule, "Split '%s' にステップが定義されていません", id)
	}

	steps := make([]core.Step, 0, len(sp.Steps))
	seen := make(map[string]struct{}, len(sp.Steps))
	for _, s := range sp.Steps {
		if s.ID == "" {
			return nil, nil, exception.NewBatchErrorf(converterModule, "Split '%s' 内のステップに 'id' がありません", id)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, nil, exception.NewBatchErrorf(converterModule, "Split '%s' 内のステップID '%s' が重複しています", id, s.ID)
		}
		seen[s.ID] = struct{}{}
		built, err := c.buildStep(s)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, built)
	}
	logger.Debugf("Split '%s' を構築しました。ステップ数: %d", id, len(steps))
	return core.NewConcreteSplit(id, steps), sp.Transitions, nil
}

// validateTransition は単一の遷移ルールを検証します。
func validateTransition(fromElementID string, t core.Transition, allElements map[string]yaml.Node) error {
	if t.On == "" {
		return exception.NewBatchErrorf(converterModule, "フロー要素 '%s' の遷移ルールに 'on' が定義されていません", fromElementID)
	}

	exclusive := 0
	for _, set := range []bool{t.End, t.Fail, t.Stop, t.To != ""} {
		if set {
			exclusive++
		}
	}
	if exclusive == 0 {
		return exception.NewBatchErrorf(converterModule, "フロー要素 '%s' の遷移ルール (on: '%s') に 'to', 'end', 'fail', 'stop' のいずれも定義されていません", fromElementID, t.On)
	}
	if exclusive > 1 {
		return exception.NewBatchErrorf(converterModule, "フロー要素 '%s' の遷移ルール (on: '%s') は 'to', 'end', 'fail', 'stop' のうち複数定義されています", fromElementID, t.On)
	}

	if t.To != "" {
		if _, ok := allElements[t.To]; !ok {
			return exception.NewBatchErrorf(converterModule, "フロー要素 '%s' の遷移ルール (on: '%s') の遷移先 '%s' が見つかりません", fromElementID, t.On, t.To)
		}
	}
	return nil
}
