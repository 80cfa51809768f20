package crew

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/security"
	"github.com/vinayprograms/blogcrew/tools"
)

// DefaultMaxIterations bounds the tool loop of an agent that sets none.
const DefaultMaxIterations = 8

// Agent describes a crew member and the model it runs on.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string

	// Tools lists the registry tools the agent may call.
	Tools []string

	Provider  llm.Provider
	Model     string
	MaxTokens int

	// MaxIterations caps model turns that end in tool calls. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// DisplayName returns Name, falling back to Role.
func (a *Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Role
}

// Validate checks the descriptor is complete and its tools exist in reg.
// A nil registry only accepts agents without tools.
func (a *Agent) Validate(reg *tools.Registry) error {
	if a == nil {
		return errors.Config("agent is nil")
	}

	var missing []string
	if strings.TrimSpace(a.Role) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(a.Goal) == "" {
		missing = append(missing, "goal")
	}
	if strings.TrimSpace(a.Backstory) == "" {
		missing = append(missing, "backstory")
	}
	if a.Provider == nil {
		missing = append(missing, "provider")
	}
	if strings.TrimSpace(a.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return errors.Config(fmt.Sprintf("agent %q is incomplete", a.DisplayName()), missing...)
	}

	if a.MaxIterations < 0 {
		return errors.Newf(errors.ErrCodeConfig, "agent %q: max_iterations must not be negative", a.DisplayName())
	}

	var unknown []string
	for _, name := range a.Tools {
		if reg == nil || !reg.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return errors.Config(fmt.Sprintf("agent %q references unknown tools", a.DisplayName()), unknown...)
	}
	return nil
}

func (a *Agent) maxIterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return DefaultMaxIterations
}

func (a *Agent) allows(tool string) bool {
	for _, name := range a.Tools {
		if name == tool {
			return true
		}
	}
	return false
}

// systemPrompt renders the persona with run inputs substituted.
func (a *Agent) systemPrompt(inputs map[string]string) (string, error) {
	role, err := Interpolate(a.Role, inputs)
	if err != nil {
		return "", err
	}
	goal, err := Interpolate(a.Goal, inputs)
	if err != nil {
		return "", err
	}
	backstory, err := Interpolate(a.Backstory, inputs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", role, backstory)
	fmt.Fprintf(&b, "Your personal goal is: %s\n", goal)
	if len(a.Tools) > 0 {
		b.WriteString(security.Notice)
		b.WriteString("\nUse the tools available to you when they help. ")
	}
	b.WriteString("When you are done, reply with your final answer only.")
	return b.String(), nil
}
