package orchestrator

import (
	"encoding/json"
	"fmt"
)

func marshalAction(a Action) (json.RawMessage, error) {
	if a == nil {
		return nil, fmt.Errorf("marshal action: nil action")
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", a.Kind(), err)
	}
	return b, nil
}
