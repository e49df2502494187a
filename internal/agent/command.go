package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Command is a capability backed by an external program. The task payload
// is written to the program's stdin as JSON. A JSON object on stdout becomes
// the result payload; any other output is returned under the "output" key.
type Command struct {
	Type    Type
	Name    string   // executable, resolved via PATH
	Args    []string // fixed arguments
	WorkDir string   // defaults to the current directory
	procMgr *ProcessManager
}

// NewCommand creates a subprocess capability. pm may be nil, in which case
// subprocesses are not tracked for shutdown.
func NewCommand(t Type, name string, args []string, pm *ProcessManager) (*Command, error) {
	if name == "" {
		return nil, fmt.Errorf("command capability for %s: empty command", t)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &Command{
		Type:    t,
		Name:    name,
		Args:    append([]string(nil), args...),
		WorkDir: workDir,
		procMgr: pm,
	}, nil
}

// Invoke runs the command once. The process group is killed when ctx ends.
func (c *Command) Invoke(ctx context.Context, payload Payload) (Payload, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	cmd := newCommand(ctx, c.Name, c.Args...)
	cmd.Dir = c.WorkDir
	cmd.Env = append(os.Environ(), "AGENTFLOW_AGENT_TYPE="+c.Type.String())

	stdout, _, err := executeCommand(cmd, input, c.procMgr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s command interrupted: %w", c.Type, ctxErr)
		}
		return nil, fmt.Errorf("%s command failed: %w", c.Type, err)
	}

	return parseCommandOutput(stdout), nil
}

// parseCommandOutput decodes a JSON object if present, otherwise wraps the
// trimmed text.
func parseCommandOutput(data []byte) Payload {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var out Payload
		if err := json.Unmarshal(trimmed, &out); err == nil {
			return out
		}
	}
	return Payload{"output": string(trimmed)}
}
