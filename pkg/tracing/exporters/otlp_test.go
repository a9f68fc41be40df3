package exporters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		wantErr  bool
	}{
		{name: "default is grpc", protocol: ""},
		{name: "grpc", protocol: "grpc"},
		{name: "http any case", protocol: "HTTP"},
		{name: "unknown", protocol: "udp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newClient(OTLPConfig{Endpoint: "collector:4317", Protocol: tt.protocol, Insecure: true})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}
