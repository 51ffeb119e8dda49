package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"rabbit-quant/internal/domain"
)

// ApplyRecommendation writes the recommended parameters into the strategy
// file at path. Only the affected keys are touched; comments and the
// remaining document are preserved. A missing file is created.
func ApplyRecommendation(path string, rec *domain.Recommendation) error {
	if rec == nil {
		return fmt.Errorf("%w: nil recommendation", ErrInvalidConfig)
	}

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read strategy file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse strategy file %s: %w", path, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: strategy file root is not a mapping", ErrInvalidConfig)
	}

	setFloat(root, rec.HurstThreshold, "hurst", "threshold")
	setFloat(root, rec.TrailingMultiplier, "risk", "trailing_atr_multiplier")
	setFloat(root, rec.PhaseLong, "filters", "phase_long_center")
	setFloat(root, rec.PhaseShort, "filters", "phase_short_center")
	if rec.MacroFilter != "" {
		setScalar(root, "!!str", string(rec.MacroFilter), "filters", "macro_filter_type")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode strategy file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode strategy file: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func setFloat(root *yaml.Node, v float64, path ...string) {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	setScalar(root, "!!float", s, path...)
}

// setScalar walks mapping keys along path, creating missing mappings, and
// sets the leaf value.
func setScalar(node *yaml.Node, tag, value string, path ...string) {
	for i, key := range path {
		child := lookup(node, key)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}
		if i == len(path)-1 {
			child.Kind = yaml.ScalarNode
			child.Tag = tag
			child.Value = value
			child.Content = nil
			child.Style = 0
			return
		}
		if child.Kind != yaml.MappingNode {
			child.Kind = yaml.MappingNode
			child.Tag = ""
			child.Value = ""
			child.Content = nil
		}
		node = child
	}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
