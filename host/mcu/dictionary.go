package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Dictionary is the parsed data dictionary reported by identify
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ParseDictionary accepts the identify data, inflating it when it is a
// zlib stream
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
		inflated, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
		data = inflated
	}
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	return d, nil
}

// formats parses every command and response signature
func (d *Dictionary) formats() (map[string]*MessageFormat, map[uint16]*MessageFormat, error) {
	commands := make(map[string]*MessageFormat, len(d.Commands))
	for sig, id := range d.Commands {
		mf, err := ParseFormat(uint16(id), sig)
		if err != nil {
			return nil, nil, err
		}
		commands[mf.Name] = mf
	}
	responses := make(map[uint16]*MessageFormat, len(d.Responses))
	for sig, id := range d.Responses {
		mf, err := ParseFormat(uint16(id), sig)
		if err != nil {
			return nil, nil, err
		}
		responses[mf.ID] = mf
	}
	return commands, responses, nil
}

// ConfigInt returns a numeric constant
func (d *Dictionary) ConfigInt(name string) (int64, bool) {
	switch v := d.Config[name].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// EnumName reverses an enumeration lookup
func (d *Dictionary) EnumName(enum string, value int) (string, bool) {
	for name, v := range d.Enumerations[enum] {
		if v == value {
			return name, true
		}
	}
	return "", false
}

// WriteSummary prints the dictionary contents, commands in id order
func (d *Dictionary) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %v\n", k, d.Config[k])
	}
	writeMessages(w, "Commands", d.Commands)
	writeMessages(w, "Responses", d.Responses)

	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(d.Enumerations))
		for _, name := range sortedKeys(d.Enumerations) {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(d.Enumerations[name]))
		}
	}
}

func writeMessages(w io.Writer, title string, msgs map[string]int) {
	sigs := sortedKeys(msgs)
	sort.SliceStable(sigs, func(i, j int) bool { return msgs[sigs[i]] < msgs[sigs[j]] })
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(msgs))
	for _, sig := range sigs {
		fmt.Fprintf(w, "  [%d] %s\n", msgs[sig], sig)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
