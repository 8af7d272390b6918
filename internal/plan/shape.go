package plan

import (
	"fmt"
	"strconv"

	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// build walks a decoded document tree and produces a SprintPlan.
func build(tree any) (*sprint.SprintPlan, error) {
	root, ok := asMap(tree)
	if !ok {
		return nil, errors.NewParseError("", fmt.Sprintf("document root must be a mapping, got %s", kindOf(tree)))
	}

	raw, ok := root["sprint"]
	if !ok {
		return nil, errors.NewParseError("sprint", "missing root \"sprint\" section")
	}
	section, ok := asMap(raw)
	if !ok {
		return nil, errors.NewParseError("sprint", fmt.Sprintf("expected a mapping, got %s", kindOf(raw)))
	}

	name, err := requiredString(section, "sprint", "name")
	if err != nil {
		return nil, err
	}
	duration, err := requiredString(section, "sprint", "duration")
	if err != nil {
		return nil, err
	}

	p := sprint.NewSprintPlan(name, duration)
	if p.Goals, err = stringList(section, "sprint", "goals", false); err != nil {
		return nil, err
	}

	tasks, err := requiredList(section, "sprint", "tasks")
	if err != nil {
		return nil, err
	}
	for i, item := range tasks {
		t, err := buildTask(item, fmt.Sprintf("sprint.tasks[%d]", i))
		if err != nil {
			return nil, err
		}
		p.AddTask(t)
	}

	gates, err := optionalList(section, "sprint", "approval_gates")
	if err != nil {
		return nil, err
	}
	for i, item := range gates {
		g, err := buildGate(item, fmt.Sprintf("sprint.approval_gates[%d]", i))
		if err != nil {
			return nil, err
		}
		p.ApprovalGates = append(p.ApprovalGates, g)
	}

	return p, nil
}

func buildTask(item any, path string) (sprint.Task, error) {
	m, ok := asMap(item)
	if !ok {
		return sprint.Task{}, errors.NewParseError(path, fmt.Sprintf("expected a mapping, got %s", kindOf(item)))
	}

	var t sprint.Task
	var err error
	if t.ID, err = requiredString(m, path, "id"); err != nil {
		return t, err
	}
	if t.Title, err = requiredString(m, path, "title"); err != nil {
		return t, err
	}

	agent, err := requiredString(m, path, "agent")
	if err != nil {
		return t, err
	}
	if t.Agent, err = sprint.ParseAgentKind(agent); err != nil {
		return t, errors.NewParseError(path+".agent", err.Error())
	}

	if t.Duration, err = requiredString(m, path, "duration"); err != nil {
		return t, err
	}
	if t.Dependencies, err = stringList(m, path, "dependencies", false); err != nil {
		return t, err
	}
	if t.AcceptanceCriteria, err = stringList(m, path, "acceptance_criteria", false); err != nil {
		return t, err
	}
	if t.Files, err = stringList(m, path, "files", false); err != nil {
		return t, err
	}
	if t.Patterns, err = stringList(m, path, "patterns", false); err != nil {
		return t, err
	}
	return t, nil
}

func buildGate(item any, path string) (sprint.ApprovalGate, error) {
	m, ok := asMap(item)
	if !ok {
		return sprint.ApprovalGate{}, errors.NewParseError(path, fmt.Sprintf("expected a mapping, got %s", kindOf(item)))
	}

	var g sprint.ApprovalGate
	var err error
	if g.Stage, err = requiredString(m, path, "stage"); err != nil {
		return g, err
	}
	if g.Requires, err = stringList(m, path, "requires", true); err != nil {
		return g, err
	}
	if g.Message, err = optionalString(m, path, "message"); err != nil {
		return g, err
	}
	if g.Blocks, err = stringList(m, path, "blocks", false); err != nil {
		return g, err
	}
	return g, nil
}

// asMap normalizes the mapping types produced by the YAML, JSON and TOML
// decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func requiredString(m map[string]any, path, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", errors.NewParseError(path+"."+key, "required field is missing")
	}
	s, ok := scalarString(v)
	if !ok {
		return "", errors.NewParseError(path+"."+key, fmt.Sprintf("expected a string, got %s", kindOf(v)))
	}
	return s, nil
}

func optionalString(m map[string]any, path, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := scalarString(v)
	if !ok {
		return "", errors.NewParseError(path+"."+key, fmt.Sprintf("expected a string, got %s", kindOf(v)))
	}
	return s, nil
}

// scalarString accepts strings and numbers. Numbers are allowed so that
// unquoted ids and bare-hour durations survive YAML and TOML typing.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func requiredList(m map[string]any, path, key string) ([]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, errors.NewParseError(path+"."+key, "required field is missing")
	}
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errors.NewParseError(path+"."+key, fmt.Sprintf("expected a list, got %s", kindOf(v)))
	}
	return list, nil
}

func optionalList(m map[string]any, path, key string) ([]any, error) {
	if _, ok := m[key]; !ok {
		return nil, nil
	}
	return requiredList(m, path, key)
}

func stringList(m map[string]any, path, key string, required bool) ([]string, error) {
	var list []any
	var err error
	if required {
		list, err = requiredList(m, path, key)
	} else {
		list, err = optionalList(m, path, key)
	}
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := scalarString(item)
		if !ok {
			return nil, errors.NewParseError(fmt.Sprintf("%s.%s[%d]", path, key, i),
				fmt.Sprintf("expected a string, got %s", kindOf(item)))
		}
		out = append(out, s)
	}
	return out, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64, float64:
		return "number"
	case []any:
		return "list"
	case map[string]any, map[any]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
