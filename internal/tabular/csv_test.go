package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Ragged(t *testing.T) {
	g, err := ReadCSV(strings.NewReader("name,age\nAl,30\nBo\n\"Cy, Jr\",40,extra\n"))
	require.NoError(t, err)
	assert.Equal(t, Grid{
		{"name", "age"},
		{"Al", "30"},
		{"Bo"},
		{"Cy, Jr", "40", "extra"},
	}, g)
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		want     string
		encoding string
	}{
		{"plain utf-8", []byte("héllo"), "héllo", "utf-8"},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("name")...), "name", "utf-8-bom"},
		{"utf-16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", "utf-16le"},
		{"utf-16be bom", []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi", "utf-16be"},
		{"latin-1", []byte{'c', 'a', 'f', 0xE9}, "café", "latin-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, enc, err := DecodeText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
			assert.Equal(t, tt.encoding, enc)
		})
	}
}

func TestReadCSV_BOMHeader(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nAl\n")...)
	g, err := ReadCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "name", g[0][0])
}
