package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_TXT(t *testing.T) {
	txt := Metadata{Version: "1.2.0", APIPort: 26538, Pairing: true}.TXT()
	assert.Equal(t, []string{
		"version=1.2.0",
		"apiPort=26538",
		"realtime=/realtime",
		"pairing=enabled",
	}, txt)

	parsed := ParseTXT(Metadata{APIPort: 1}.TXT())
	assert.Equal(t, "disabled", parsed["pairing"])
	assert.Equal(t, "1", parsed["apiPort"])
}

func TestParseTXT(t *testing.T) {
	got := ParseTXT([]string{"a=1", "flag", "=orphan", "b=x=y"})
	assert.Equal(t, map[string]string{"a": "1", "flag": "", "b": "x=y"}, got)
}

func TestNewAdvertiser_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{InstanceName: "Living room", Port: 26538}, false},
		{"missing port", Config{InstanceName: "x"}, true},
		{"port out of range", Config{InstanceName: "x", Port: 70000}, true},
		{"missing name", Config{Port: 26538}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdvertiser(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewAdvertiser_APIPortDefaultsToPort(t *testing.T) {
	a, err := NewAdvertiser(Config{InstanceName: "x", Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, 9000, a.cfg.Meta.APIPort)
}

func TestAdvertiser_SetPairingBeforeStart(t *testing.T) {
	a, err := NewAdvertiser(Config{InstanceName: "x", Port: 9000})
	require.NoError(t, err)

	require.NoError(t, a.SetPairing(true))
	assert.True(t, a.cfg.Meta.Pairing)
	assert.Empty(t, a.servers)
}

func TestAdvertiser_StartStop(t *testing.T) {
	a, err := NewAdvertiser(Config{InstanceName: "ytmcompanion-test", Port: 26538})
	require.NoError(t, err)

	if err := a.Start(); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	require.NoError(t, a.SetPairing(true))
	require.NoError(t, a.Stop())
}
