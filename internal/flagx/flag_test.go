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
			name:         "short flag with separate value",
			args:         []string{"-y", "30", "-a", "http://shop.local"},
			allowedFlags: []string{"-y"},
			want:         []string{"-y", "30"},
		},
		{
			name:         "equals form",
			args:         []string{"-f=replica.db", "-a", "http://shop.local"},
			allowedFlags: []string{"-f"},
			want:         []string{"-f=replica.db"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "-config"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept",
			args:         []string{"-c"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "next dash token is not a value",
			args:         []string{"-c", "-config=alt.json"},
			allowedFlags: []string{"-c", "-config"},
			want:         []string{"-c", "-config=alt.json"},
		},
		{
			name:         "order preserved across several flags",
			args:         []string{"-a", ":8080", "-d", "postgres://x", "-r", ":50051"},
			allowedFlags: []string{"-a", "-r"},
			want:         []string{"-a", ":8080", "-r", ":50051"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/shop.json", ConfigPath([]string{"-c", "/etc/shop.json", "-a", ":1"}))
	assert.Equal(t, "/etc/long.json", ConfigPath([]string{"-config=/etc/long.json"}))
	assert.Equal(t, "/p/2.json", ConfigPath([]string{"-c", "/p/1.json", "-config", "/p/2.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1"}))
}

func TestJsonConfigFlags_ReadsProcessArgs(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"shop-server", "-c", "/srv/server.json"}
	assert.Equal(t, "/srv/server.json", JsonConfigFlags())
}
