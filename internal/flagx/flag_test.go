package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "flag with separate value",
			args:         []string{"-a", ":9090", "-d", "dsn"},
			allowedFlags: []string{"-a"},
			want:         []string{"-a", ":9090"},
		},
		{
			name:         "equals form",
			args:         []string{"--config=server.json", "-dev"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=server.json"},
		},
		{
			name:         "order preserved across spellings",
			args:         []string{"--config=a.json", "-c", "b.json", "-x", "1"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=a.json", "-c", "b.json"},
		},
		{
			name:         "disallowed flags and positionals dropped",
			args:         []string{"-x", "1", "--y=2", "extra"},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
		{
			name:         "boolean flag keeps no value",
			args:         []string{"-dev", "-t", "5"},
			allowedFlags: []string{"-dev"},
			want:         []string{"-dev"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-c", "-dev"},
			allowedFlags: []string{"-c", "-dev"},
			want:         []string{"-c", "-dev"},
		},
		{
			name:         "dash inside equals value survives",
			args:         []string{"--config=--odd.json"},
			allowedFlags: []string{"--config"},
			want:         []string{"--config=--odd.json"},
		},
		{
			name:         "several allowed flags",
			args:         []string{"-a", ":8080", "-t", "15", "-w", "15", "--skip", "x"},
			allowedFlags: []string{"-a", "-t", "-w"},
			want:         []string{"-a", ":8080", "-t", "15", "-w", "15"},
		},
		{
			name:         "empty args yield empty non-nil slice",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
		{
			name:         "repeated flag preserved in order",
			args:         []string{"-c", "one.json", "-c", "two.json"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "one.json", "-c", "two.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short -c", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/etc/passlink/server.json"}
		assert.Equal(t, "/etc/passlink/server.json", JsonConfigFlags())
	})

	t.Run("long -config", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", "/etc/passlink/alt.json"}
		assert.Equal(t, "/etc/passlink/alt.json", JsonConfigFlags())
	})

	t.Run("no config flag", func(t *testing.T) {
		os.Args = []string{"testbin", "-a", ":8080", "-dev"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("last occurrence wins", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/a.json", "-config", "/b.json"}
		assert.Equal(t, "/b.json", JsonConfigFlags())
	})
}
