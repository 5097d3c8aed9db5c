package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// UpdateTaskEnabled flips a scheduled task's enabled flag and writes the
// change back to the config file. The write edits the YAML node tree so
// keys this version does not know about survive the round trip.
func (c *Config) UpdateTaskEnabled(name string, enabled bool) error {
	task := c.findTask(name)
	if task == nil {
		return fmt.Errorf("scheduled task %q not in config", name)
	}
	task.Enabled = enabled

	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		data, err = yaml.Marshal(c)
		if err != nil {
			return err
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	root := docRoot(&doc)
	tasks := ensureSeq(ensureMap(root, "scheduler"), "tasks")

	found := false
	for _, item := range tasks.Content {
		if n := mapValue(item, "name"); n != nil && n.Value == name {
			setBool(item, "enabled", enabled)
			found = true
		}
	}
	if !found {
		tasks.Content = append(tasks.Content, taskNode(*task))
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return err
	}
	return writeFileAtomic(c.path, out)
}

func (c *Config) findTask(name string) *TaskConfig {
	for i := range c.Scheduler.Tasks {
		if c.Scheduler.Tasks[i].Name == name {
			return &c.Scheduler.Tasks[i]
		}
	}
	return nil
}

func docRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return &yaml.Node{Kind: yaml.MappingNode}
}

// mapValue returns the value node for key in a mapping, or nil.
func mapValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func ensureMap(parent *yaml.Node, key string) *yaml.Node {
	if v := mapValue(parent, key); v != nil {
		return v
	}
	v := &yaml.Node{Kind: yaml.MappingNode}
	parent.Content = append(parent.Content, scalarNode("!!str", key), v)
	return v
}

func ensureSeq(parent *yaml.Node, key string) *yaml.Node {
	if v := mapValue(parent, key); v != nil {
		return v
	}
	v := &yaml.Node{Kind: yaml.SequenceNode}
	parent.Content = append(parent.Content, scalarNode("!!str", key), v)
	return v
}

func setBool(m *yaml.Node, key string, val bool) {
	s := strconv.FormatBool(val)
	if v := mapValue(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!bool"
		v.Value = s
		return
	}
	m.Content = append(m.Content, scalarNode("!!str", key), scalarNode("!!bool", s))
}

func scalarNode(tag, val string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: val}
}

func taskNode(t TaskConfig) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	n.Content = append(n.Content,
		scalarNode("!!str", "name"), scalarNode("!!str", t.Name),
		scalarNode("!!str", "schedule"), scalarNode("!!str", t.Schedule),
		scalarNode("!!str", "action"), scalarNode("!!str", t.Action),
		scalarNode("!!str", "enabled"), scalarNode("!!bool", strconv.FormatBool(t.Enabled)),
	)
	return n
}
