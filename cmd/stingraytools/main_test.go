package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/stingrayTools/pkg/registry"
	"github.com/EchoTools/stingrayTools/pkg/toc"
)

func TestParseFileID(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"255", 255},
		{"0xff", 255},
		{"0xcd4238c6a0c69e32", toc.TextureID},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFileID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseFileID("ff")
	assert.Error(t, err)
}

func TestParseTypeID(t *testing.T) {
	reg := registry.New(nil)
	reg.TypeNames.Set(0x1234, "wwise_bank")

	tests := []struct {
		in   string
		want uint64
	}{
		{"texture", toc.TextureID},
		{"state_machine", toc.StateMachineID},
		{"wwise_bank", 0x1234},
		{"e0a48d0be9a7453f", toc.UnitID},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTypeID(reg, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := parseTypeID(reg, "not-a-type")
		assert.Error(t, err)
	})

	t.Run("Label", func(t *testing.T) {
		assert.Equal(t, "unit", typeLabel(reg, toc.UnitID))
		assert.Equal(t, "wwise_bank", typeLabel(reg, 0x1234))
		assert.Equal(t, "000000000000abcd", typeLabel(reg, 0xabcd))
	})
}
