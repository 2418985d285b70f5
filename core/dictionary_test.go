package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("set_led", "mask=%c", func(data *[]byte) error { return nil })
	registry.RegisterResponse("di_value", "mask=%c")

	dict := NewDictionary(registry, "analogio-test")
	dict.AddConstant("CHANNELS", 8)
	dict.AddEnumeration("adc_range", []string{"0_10v", "", "pm2p5v"})
	require.NoError(t, dict.Build())

	parsed, err := ParseDictionary(dict.Generate())
	require.NoError(t, err)

	assert.Equal(t, "analogio-test", parsed.Version)
	assert.Equal(t, "8", parsed.Config["CHANNELS"])
	assert.Equal(t, map[string]int{"set_led mask=%c": 0}, parsed.Commands)
	assert.Equal(t, map[string]int{"di_value mask=%c": 1}, parsed.Responses)
	assert.Equal(t, map[string]int{"0_10v": 0, "pm2p5v": 2}, parsed.Enumerations["adc_range"])
}

func TestDictionaryChunks(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry(), "v")
	full := dict.Generate()
	require.NotEmpty(t, full)

	var joined []byte
	for offset := uint32(0); ; {
		chunk := dict.GetChunk(offset, 7)
		if len(chunk) == 0 {
			break
		}
		joined = append(joined, chunk...)
		offset += uint32(len(chunk))
	}
	assert.Equal(t, full, joined)
	assert.Empty(t, dict.GetChunk(uint32(len(full))+10, 40))
}
