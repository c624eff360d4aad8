package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SaveServer updates the server section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveServer(configPath string, server ServerConfig) error {
	if err := ValidateServer(server); err != nil {
		return err
	}
	node := mapping(
		"base_url", server.BaseURL,
	)
	if server.WSURL != "" {
		node.Content = append(node.Content, scalar("ws_url"), scalar(server.WSURL))
	}
	if server.Timeout > 0 {
		node.Content = append(node.Content, scalar("timeout"), scalar(server.Timeout.String()))
	}
	if server.PingInterval > 0 {
		node.Content = append(node.Content, scalar("ping_interval"), scalar(server.PingInterval.String()))
	}
	return saveSection(configPath, "server", node)
}

// SaveModel updates the default LLM provider.
func SaveModel(configPath, model string) error {
	if model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return saveSection(configPath, "model", scalar(model))
}

// SaveHistoryLimit updates history.limit.
func SaveHistoryLimit(configPath string, limit int) error {
	if err := ValidateHistory(HistoryConfig{Limit: limit}); err != nil {
		return err
	}
	node := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		scalar("limit"),
		{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(limit)},
	}}
	return saveSection(configPath, "history", node)
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func mapping(kv ...string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content, scalar(kv[i]), scalar(kv[i+1]))
	}
	return n
}

// saveSection replaces (or appends) the top-level key with value and writes
// the file atomically.
func saveSection(configPath, key string, value *yaml.Node) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{Kind: yaml.MappingNode, Content: []*yaml.Node{scalar(key), value}},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level is not a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == key {
				root.Content[i+1] = value
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content, scalar(key), value)
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".refcheck.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
