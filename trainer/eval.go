package trainer

import (
	"errors"
	"fmt"

	"gorgonia.org/gorgonia"
)

// EvalOutputs executes a forward pass without gradient computation and
// returns the values of the named outputs.
func EvalOutputs(pass *Pass, keys ...string) (map[string]gorgonia.Value, error) {
	if pass == nil || pass.Graph == nil {
		return nil, errors.New("trainer: nil pass")
	}
	if len(keys) == 0 {
		return nil, errors.New("trainer: no output keys requested")
	}
	holders := make([]gorgonia.Value, len(keys))
	for i, key := range keys {
		node, ok := pass.Outputs[key]
		if !ok {
			return nil, fmt.Errorf("trainer: pass has no output %q", key)
		}
		gorgonia.Read(node, &holders[i])
	}
	vm := gorgonia.NewTapeMachine(pass.Graph)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("trainer: evaluate pass: %w", err)
	}
	out := make(map[string]gorgonia.Value, len(keys))
	for i, key := range keys {
		if holders[i] == nil {
			return nil, fmt.Errorf("trainer: output %q was not computed", key)
		}
		out[key] = holders[i]
	}
	return out, nil
}
