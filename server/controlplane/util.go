package controlplane

import (
	"fmt"
	"strconv"
)

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive: %d", n)
	}
	return n, nil
}

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}
