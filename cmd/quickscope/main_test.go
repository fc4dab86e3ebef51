package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Version(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
}

func TestRun_UsageError(t *testing.T) {
	assert.Equal(t, 2, run([]string{"scan", "--concurrency", "lots", "127.0.0.1"}))
	assert.Equal(t, 2, run([]string{"scan"}))
}
