package mib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOID(t *testing.T) {
	tests := []struct {
		in      string
		want    OID
		wantErr bool
	}{
		{in: "1.3.6.1", want: OID{1, 3, 6, 1}},
		{in: ".1.3.6.1.4.1.28308.1.1.0", want: OID{1, 3, 6, 1, 4, 1, 28308, 1, 1, 0}},
		{in: "0", want: OID{0}},
		{in: "4294967295", want: OID{4294967295}},
		{in: "", wantErr: true},
		{in: "1..3", wantErr: true},
		{in: "1.3.", wantErr: true},
		{in: "1.a.3", wantErr: true},
		{in: "4294967296", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOIDStringRoundTrip(t *testing.T) {
	o := MustParseOID("1.3.6.1.4.1.28308.1.5.0")
	assert.Equal(t, "1.3.6.1.4.1.28308.1.5.0", o.String())
	assert.Equal(t, "", OID(nil).String())
}

func TestOIDCompareIsNumeric(t *testing.T) {
	// As strings "1.10" < "1.9"; numerically 1.9 comes first.
	a := MustParseOID("1.3.6.1.9")
	b := MustParseOID("1.3.6.1.10")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a.Clone()))

	// A prefix sorts before its children.
	parent := MustParseOID("1.3.6.1")
	assert.Equal(t, -1, parent.Compare(a))
	assert.True(t, a.HasPrefix(parent))
	assert.False(t, parent.HasPrefix(a))
}
