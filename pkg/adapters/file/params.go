package file

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aretw0/cadence/pkg/domain"
	"gopkg.in/yaml.v3"
)

// encodeParameters renders params with an explicit tag on every scalar, so a
// float that happens to be whole still reads back as a float.
func encodeParameters(params domain.ParameterSet) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range params.Keys() {
		value, err := taggedNode(params[key])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value, Style: yaml.TaggedStyle}
}

func taggedNode(v any) (*yaml.Node, error) {
	switch n := v.(type) {
	case nil:
		return scalar("!!null", "null"), nil
	case bool:
		return scalar("!!bool", strconv.FormatBool(n)), nil
	case string:
		return scalar("!!str", n), nil
	case float32:
		return scalar("!!float", strconv.FormatFloat(float64(n), 'g', -1, 32)), nil
	case float64:
		return scalar("!!float", strconv.FormatFloat(n, 'g', -1, 64)), nil
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, key := range domain.ParameterSet(n).Keys() {
			child, err := taggedNode(n[key])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range n {
			child, err := taggedNode(e)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	default:
		if i, err := domain.ToInt(v); err == nil {
			return scalar("!!int", strconv.Itoa(i)), nil
		}
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

func decodeParameters(data []byte) (domain.ParameterSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}
	if len(doc.Content) == 0 {
		return domain.ParameterSet{}, nil
	}
	value, err := nodeValue(doc.Content[0])
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameters must be a mapping, got %s", doc.Content[0].ShortTag())
	}
	return domain.ParameterSet(m), nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	switch n.ShortTag() {
	case "!!int":
		var i int
		err := n.Decode(&i)
		return i, err
	case "!!float":
		var f float64
		err := n.Decode(&f)
		return f, err
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return b, err
	case "!!null":
		return nil, nil
	default:
		return n.Value, nil
	}
}

// ReadParameters restores a parameter file written by StoreRun.
func (a *Archive) ReadParameters(path string) (domain.ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	return decodeParameters(data)
}
