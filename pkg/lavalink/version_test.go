package lavalink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Version
		wantErr bool
	}{
		{name: "plain", raw: "3.7.8", want: Version{3, 7, 8}},
		{name: "v4", raw: "4.0.0", want: Version{4, 0, 0}},
		{name: "whitespace", raw: " 4.0.4\n", want: Version{4, 0, 4}},
		{name: "snapshot suffix", raw: "4.0.0-SNAPSHOT", want: Version{Major: 4}},
		{name: "build metadata", raw: "4.1.0+dev", want: Version{Major: 4}},
		{name: "empty", raw: "", wantErr: true},
		{name: "two fields", raw: "3.7", wantErr: true},
		{name: "garbage", raw: "a.b.c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionOrdering(t *testing.T) {
	assert.True(t, Version{3, 7, 4}.Less(Version{3, 7, 5}))
	assert.True(t, Version{3, 7, 5}.Less(Version{4, 0, 0}))
	assert.False(t, Version{4, 0, 0}.Less(Version{3, 9, 9}))

	assert.True(t, Version{3, 7, 5}.AtLeast(Version{3, 7, 5}))
	assert.True(t, Version{4, 0, 0}.AtLeast(Version{3, 7, 5}))
	assert.False(t, Version{3, 7, 4}.AtLeast(Version{3, 7, 5}))
}
