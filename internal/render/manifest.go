package render

import (
	"bytes"
	"fmt"

	"sigs.k8s.io/yaml"
)

// Manifest renders objects as a multi-document YAML stream in the given
// order. The output is byte-stable for identical input.
func Manifest(objs []Object) ([]byte, error) {
	var buf bytes.Buffer
	for i, o := range objs {
		data, err := yaml.Marshal(o.Resource)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", o.Ref(), err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
