package fill

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadRecords reads batch records from a CSV file (header row holds the
// keywords) or a JSON/YAML file holding either a list of mappings or a
// mapping with a "records" list. Values are sanitized; key order is kept.
func LoadRecords(path string) ([]Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fillerr.New(fillerr.InputNotFound, "load records", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var records []Values
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		records, err = parseCSVRecords(bytes.NewReader(data))
	} else {
		records, err = parseYAMLRecords(data)
	}
	if err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "load records "+path, err)
	}
	return records, nil
}

// LoadValues reads a single JSON/YAML mapping of keyword to value
func LoadValues(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fillerr.New(fillerr.InputNotFound, "load values", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &doc); err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "load values "+path, err)
	}
	if len(doc.Content) == 0 {
		return Values{}, nil
	}
	values, err := mappingValues(doc.Content[0])
	if err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "load values "+path, err)
	}
	return values.Sanitize(), nil
}

func parseCSVRecords(r io.Reader) ([]Values, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Values
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(Values, 0, len(header))
		for i, key := range header {
			if i < len(row) {
				rec = append(rec, Value{Key: key, Value: row[i]})
			}
		}
		records = append(records, rec.Sanitize())
	}
	return records, nil
}

func parseYAMLRecords(data []byte) ([]Values, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = lookup(list, "records")
		if list == nil {
			return nil, fmt.Errorf("want a list of records or a mapping with a records list")
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("records must be a list, got %s", kindName(list.Kind))
	}

	records := make([]Values, 0, len(list.Content))
	for _, item := range list.Content {
		// Non-mapping items are skipped
		if item.Kind != yaml.MappingNode {
			continue
		}
		rec, err := mappingValues(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec.Sanitize())
	}
	return records, nil
}

// mappingValues reads a mapping of scalars in document order. Null values
// become empty strings and are dropped by Sanitize.
func mappingValues(n *yaml.Node) (Values, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("want a mapping, got %s", kindName(n.Kind))
	}
	out := make(Values, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("value of %q (line %d) is not a scalar", k.Value, v.Line)
		}
		value := v.Value
		if v.Tag == "!!null" {
			value = ""
		}
		out = append(out, Value{Key: k.Value, Value: value})
	}
	return out, nil
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
