package rates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gorates/domain/core"
)

// ParseGrid decodes an outcome grid from JSON. The value must be null or an
// array of non-negative integers; param names the field in error messages.
// A nil grid means "use the default grid".
func ParseGrid(raw json.RawMessage, param string) ([]int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, core.NewInvalidArgumentError(param, fmt.Sprintf("must be a sequence of non-negative integers, got %s", string(trimmed)))
	}

	var values []float64
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, core.NewInvalidArgumentError(param, fmt.Sprintf("must be a sequence of non-negative integers: %v", err))
	}

	grid := make([]int, len(values))
	for i, v := range values {
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
			return nil, core.NewInvalidArgumentError(param, fmt.Sprintf("element %d (%g) is not a non-negative integer", i, v))
		}
		grid[i] = int(v)
	}
	return grid, nil
}
