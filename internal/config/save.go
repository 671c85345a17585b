package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/modeldeck/internal/log"
)

// SetValue sets a dotted key (e.g. "ollama.binary") to a scalar value in the
// config file. Comments and formatting elsewhere in the file are preserved
// by editing the yaml.Node tree rather than re-marshaling a struct.
func SetValue(configPath, dottedKey, value string) error {
	keys := strings.Split(dottedKey, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("invalid key %q", dottedKey)
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: user-selected config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root must be a mapping")
	}

	node := doc.Content[0]
	for _, k := range keys[:len(keys)-1] {
		child, err := mappingChild(node, k, true)
		if err != nil {
			return fmt.Errorf("setting %s: %w", dottedKey, err)
		}
		node = child
	}

	leafKey := keys[len(keys)-1]
	scalar := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	if i := indexOfKey(node, leafKey); i >= 0 {
		// Keep any line comment attached to the old value.
		scalar.LineComment = node.Content[i+1].LineComment
		node.Content[i+1] = scalar
	} else {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: leafKey}, scalar)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := writeAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Updated config value", "path", configPath, "key", dottedKey)
	return nil
}

func indexOfKey(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// mappingChild returns the mapping stored under key, creating it when asked.
func mappingChild(mapping *yaml.Node, key string, create bool) (*yaml.Node, error) {
	if i := indexOfKey(mapping, key); i >= 0 {
		child := mapping.Content[i+1]
		if child.Kind == yaml.ScalarNode && child.Value == "" {
			// "key:" with no value parses as a null scalar; turn it into a mapping.
			*child = yaml.Node{Kind: yaml.MappingNode}
		}
		if child.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a section", key)
		}
		return child, nil
	}
	if !create {
		return nil, fmt.Errorf("section %q not found", key)
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
	return child, nil
}

// writeAtomic writes to a temp file in the same directory, then renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".modeldeck.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
