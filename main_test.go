package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"absent", []string{"analyze", "a.mp3"}, ""},
		{"separate value", []string{"--config", "/tmp/c.yaml", "serve"}, "/tmp/c.yaml"},
		{"equals form", []string{"serve", "--config=/tmp/c.yaml"}, "/tmp/c.yaml"},
		{"missing value", []string{"serve", "--config"}, ""},
		{"after terminator", []string{"play", "--", "--config", "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, configFlag(tt.args))
		})
	}
}
