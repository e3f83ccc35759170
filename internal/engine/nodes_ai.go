package engine

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/loomworks/loom/internal/jsonpath"
	"github.com/loomworks/loom/pkg/schema"
)

// AI node executors. Each resolves its input path against the context,
// requests a completion through the Effects boundary, and writes the result
// to its configured output key. Malformed classify/extract responses fall
// back to the deterministic stub: model unreliability never hard-fails a
// run, only transport and configuration errors do.

func (r *Runner) execSummarize(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeSummarizeConfig(node.Config)
	input, _ := jsonpath.Resolve(ec, cfg.InputPath)

	text, err := r.effects.Complete(ctx, CompletionRequest{
		Kind:  CompletionSummarize,
		Input: input,
		Hints: map[string]string{
			"style":        cfg.Style,
			"bullets":      strconv.FormatBool(cfg.Bullets),
			"instructions": cfg.Instructions,
		},
	})
	if err != nil {
		return nil, err
	}

	return shallowExtend(ec, map[string]any{cfg.OutputKey: text}), nil
}

func (r *Runner) execClassify(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeClassifyConfig(node.Config)
	input, _ := jsonpath.Resolve(ec, cfg.InputPath)

	label, confidence, err := r.classify(ctx, input, cfg.Labels)
	if err != nil {
		return nil, err
	}

	return shallowExtend(ec, map[string]any{
		cfg.OutputKey:     label,
		cfg.ConfidenceKey: confidence,
	}), nil
}

// classify requests a {label, confidence} object and accepts it only when
// the label is a configured member and the confidence is finite. Anything
// else degrades to the deterministic classifier.
func (r *Runner) classify(ctx context.Context, input any, labels []string) (string, float64, error) {
	obj, err := r.effects.CompleteObject(ctx, CompletionRequest{
		Kind:   CompletionClassify,
		Input:  input,
		Labels: labels,
	})
	if err != nil {
		if isMalformedResponse(err) {
			r.logger.WarnContext(ctx, "classify response unparseable, using deterministic fallback")
			label, confidence := stubClassify(input, labels)
			return label, confidence, nil
		}
		return "", 0, err
	}

	label, _ := obj["label"].(string)
	if !containsLabel(labels, label) {
		r.logger.WarnContext(ctx, "classify returned non-member label, using deterministic fallback",
			"label", label)
		fallbackLabel, confidence := stubClassify(input, labels)
		return fallbackLabel, confidence, nil
	}

	confidence, ok := finiteNumber(obj["confidence"])
	if !ok {
		r.logger.WarnContext(ctx, "classify returned non-finite confidence, using deterministic fallback")
		fallbackLabel, fallbackConfidence := stubClassify(input, labels)
		return fallbackLabel, fallbackConfidence, nil
	}

	return label, clamp01(confidence), nil
}

func (r *Runner) execExtract(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeExtractConfig(node.Config)
	input, _ := jsonpath.Resolve(ec, cfg.InputPath)

	obj, err := r.effects.CompleteObject(ctx, CompletionRequest{
		Kind:   CompletionExtract,
		Input:  input,
		Fields: cfg.Fields,
	})
	if err != nil {
		if isMalformedResponse(err) {
			r.logger.WarnContext(ctx, "extract response unparseable, using zero-value defaults")
			obj = nil
		} else {
			return nil, err
		}
	}

	extracted := make(map[string]any, len(cfg.Fields))
	for _, f := range cfg.Fields {
		extracted[f.Key] = coerceField(obj[f.Key], f.Type)
	}

	return shallowExtend(ec, map[string]any{cfg.OutputKey: extracted}), nil
}

func (r *Runner) execReport(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeReportConfig(node.Config)
	input, _ := jsonpath.Resolve(ec, cfg.InputPath)

	text, err := r.effects.Complete(ctx, CompletionRequest{
		Kind:  CompletionReport,
		Input: input,
		Hints: map[string]string{
			"template":     cfg.Template,
			"format":       cfg.Format,
			"instructions": cfg.Instructions,
		},
	})
	if err != nil {
		return nil, err
	}

	return shallowExtend(ec, map[string]any{cfg.OutputKey: text}), nil
}

// coerceField bends a returned value into its declared field type, with the
// stub zero value as the last resort.
func coerceField(v any, fieldType string) any {
	if v == nil {
		return zeroValueFor(fieldType)
	}

	switch fieldType {
	case "number":
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return float64(0)
			}
			return f
		default:
			return float64(0)
		}
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b
		case string:
			return b != ""
		case float64:
			return b != 0
		default:
			return true
		}
	case "array":
		if arr, ok := v.([]any); ok {
			return arr
		}
		return []any{v}
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return stringify(v)
	}
}

func isMalformedResponse(err error) bool {
	var loomErr *schema.LoomError
	return errors.As(err, &loomErr) && loomErr.Code == schema.ErrCodeBadResponse
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func finiteNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func clamp01(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
