package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsage_WriteCommandsAreMarkedOffline(t *testing.T) {
	for _, line := range strings.Split(usage, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "stop <") || strings.HasPrefix(trimmed, "stopall <") {
			assert.Contains(t, line, "(offline only)")
		}
	}
	assert.Contains(t, usage, "Stop the bot first")
}
