package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want command
	}{
		{nil, command{name: "up"}},
		{[]string{"up"}, command{name: "up"}},
		{[]string{"version"}, command{name: "version"}},
		{[]string{"down"}, command{name: "down", steps: 1}},
		{[]string{"down", "2"}, command{name: "down", steps: 2}},
		{[]string{"force", "1"}, command{name: "force", steps: 1}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, got, tt.args)
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, args := range [][]string{
		{"sideways"},
		{"up", "1"},
		{"down", "0"},
		{"down", "x"},
		{"down", "1", "2"},
		{"force"},
		{"force", "abc"},
	} {
		_, err := parseCommand(args)
		assert.Error(t, err, args)
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	err := run(context.Background(), &appconfig.Config{}, command{name: "up"}, logging.Discard())
	assert.ErrorContains(t, err, "DATABASE_URL")
}
