package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestJSONB_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    sample
		wantErr bool
	}{
		{name: "bytes", src: []byte(`{"name":"a","count":2,"tags":["x"]}`), want: sample{Name: "a", Count: 2, Tags: []string{"x"}}},
		{name: "string", src: `{"name":"b"}`, want: sample{Name: "b"}},
		{name: "nil", src: nil, want: sample{}},
		{name: "unsupported", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONB[sample]
			err := j.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, j.GetValue())
		})
	}
}

func TestJSONB_Value(t *testing.T) {
	j := NewJSONB([]string{"email", "phone"})
	v, err := j.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `["email","phone"]`, string(v.([]byte)))
}

func TestJSONB_MarshalJSON(t *testing.T) {
	j := NewJSONB(sample{Name: "c"})
	b, err := j.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"c","count":0,"tags":null}`, string(b))
}
