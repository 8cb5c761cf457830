package client

import (
	"testing"

	"neoupdate/internal/config"
)

func TestBuildAPIURL(t *testing.T) {
	tests := []struct {
		name   string
		ssl    bool
		format string
		args   []interface{}
		want   string
	}{
		{
			name: "Base URL No Trailing Slash",
			ssl:  true,
			want: "https://hb.example.com/DEFAULT/controller/v1/dev01",
		},
		{
			name: "Plain HTTP Scheme",
			ssl:  false,
			want: "http://hb.example.com/DEFAULT/controller/v1/dev01",
		},
		{
			name:   "Feedback Path",
			ssl:    true,
			format: "deploymentBase/%s/feedback",
			args:   []interface{}{"abc"},
			want:   "https://hb.example.com/DEFAULT/controller/v1/dev01/deploymentBase/abc/feedback",
		},
		{
			name:   "Config Data Path",
			ssl:    true,
			format: "configData",
			want:   "https://hb.example.com/DEFAULT/controller/v1/dev01/configData",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.HawkbitConfig{
				Server:       "hb.example.com",
				TenantID:     "DEFAULT",
				ControllerID: "dev01",
				SSL:          tt.ssl,
			}
			got := BuildAPIURL(cfg, tt.format, tt.args...)
			if got != tt.want {
				t.Errorf("BuildAPIURL = %q, want %q", got, tt.want)
			}
		})
	}
}
