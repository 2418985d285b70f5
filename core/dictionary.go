package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"sync"
)

// Dictionary describes the firmware to the host: version, constants,
// enumerations and the ID of every command and response. The host fetches
// it in chunks with the identify command. The served form is zlib
// compressed JSON.
type Dictionary struct {
	mu            sync.RWMutex
	registry      *CommandRegistry
	version       string
	buildVersions string
	constants     map[string]string
	enumerations  map[string]map[string]int
	cached        []byte
}

// DictionaryData is the wire form, shared with the host side.
type DictionaryData struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

func NewDictionary(registry *CommandRegistry, version string) *Dictionary {
	return &Dictionary{
		registry:      registry,
		version:       version,
		buildVersions: "go",
		constants:     make(map[string]string),
		enumerations:  make(map[string]map[string]int),
	}
}

// AddConstant records a constant; the value is rendered with %v.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = fmt.Sprint(value)
	d.cached = nil
}

// AddEnumeration maps each non-empty value to its index.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := make(map[string]int, len(values))
	for i, v := range values {
		if v != "" {
			e[v] = i
		}
	}
	d.enumerations[name] = e
	d.cached = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
}

// Build freezes the dictionary. Call it after every module registered its
// commands; later registrations are not visible until the next Build.
func (d *Dictionary) Build() error {
	// fetch outside our lock, the registry has its own
	commands, responses := d.registry.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := json.Marshal(DictionaryData{
		Version:       d.version,
		BuildVersions: d.buildVersions,
		Config:        d.constants,
		Commands:      commands,
		Responses:     responses,
		Enumerations:  d.enumerations,
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	d.cached = buf.Bytes()
	return nil
}

// ParseDictionary decompresses and decodes a dictionary fetched from the
// firmware.
func ParseDictionary(raw []byte) (*DictionaryData, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var dd DictionaryData
	if err := json.NewDecoder(r).Decode(&dd); err != nil {
		return nil, err
	}
	return &dd, nil
}

// Generate returns the serialised dictionary, building it if needed.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	data := d.cached
	d.mu.RUnlock()
	if data != nil {
		return data
	}
	if err := d.Build(); err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// GetChunk returns up to count bytes starting at offset. An empty chunk
// marks the end of the dictionary.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
