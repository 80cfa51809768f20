package crew

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vinayprograms/blogcrew/errors"
)

// Task is one unit of work assigned to an agent.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent
}

// Validate checks the descriptor is complete. The agent itself is
// validated by the crew.
func (t *Task) Validate() error {
	if t == nil {
		return errors.Config("task is nil")
	}

	var missing []string
	if strings.TrimSpace(t.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(t.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(t.ExpectedOutput) == "" {
		missing = append(missing, "expected_output")
	}
	if t.Agent == nil {
		missing = append(missing, "agent")
	}
	if len(missing) > 0 {
		return errors.Config(fmt.Sprintf("task %q is incomplete", t.Name), missing...)
	}
	return nil
}

// prompt renders the user turn for the task. Outputs of earlier tasks are
// appended as context, oldest first.
func (t *Task) prompt(inputs map[string]string, prior []TaskOutput) (string, error) {
	desc, err := Interpolate(t.Description, inputs)
	if err != nil {
		return "", err
	}
	expected, err := Interpolate(t.ExpectedOutput, inputs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Current task: ")
	b.WriteString(strings.TrimSpace(desc))
	b.WriteString("\n\nThis is the expected criteria for your final answer: ")
	b.WriteString(strings.TrimSpace(expected))
	if len(prior) > 0 {
		b.WriteString("\n\nThis is the context you're working with:")
		for _, out := range prior {
			fmt.Fprintf(&b, "\n\n## %s (%s)\n%s", out.Task, out.Agent, out.Output)
		}
	}
	return b.String(), nil
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate replaces {name} placeholders with inputs[name]. A
// placeholder with no input is an INVALID_INPUT error. Braces that do not
// enclose an identifier are left alone.
func Interpolate(s string, inputs map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := inputs[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", errors.InvalidInput(
			fmt.Sprintf("missing inputs: %s", strings.Join(missing, ", ")),
			errors.WithMetadata("missing", strings.Join(missing, ",")))
	}
	return out, nil
}
