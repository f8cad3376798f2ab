package core

import (
	"bytes"
	"sort"
	"strconv"
	"sync"

	"adsgopper/tinycompress"
)

// Constant is a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{} // string or an integer type
}

// Dictionary builds the data dictionary returned by identify
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]map[string]int
	commandReg    *CommandRegistry
	version       string
	buildVersions string

	cachedDict []byte
	cachedGen  uint32
	dirty      bool
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]map[string]int),
		commandReg:    cmdReg,
		version:       "adsgopper-0.1.0",
		buildVersions: "go-tinygo",
		dirty:         true,
	}
}

func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant registers a constant in the global dictionary (DECL_CONSTANT)
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers values numbered by position (DECL_ENUMERATION).
// Empty names are skipped but still use up their index.
func RegisterEnumeration(name string, values []string) {
	for i, v := range values {
		if v != "" {
			globalDictionary.AddEnumerationValue(name, v, i)
		}
	}
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.dirty = true
}

func (d *Dictionary) AddEnumerationValue(enum, value string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	values, ok := d.enumerations[enum]
	if !ok {
		values = make(map[string]int)
		d.enumerations[enum] = values
	}
	values[value] = id
	d.dirty = true
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.dirty = true
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.dirty = true
}

// BuildDictionary compresses and caches the dictionary. Call once every
// command is registered; GetChunk rebuilds lazily if anything changed since.
func (d *Dictionary) BuildDictionary() {
	// Read the registry before taking our own lock; the registry is never
	// held while calling into the dictionary.
	entries := d.commandReg.Entries()
	gen := d.commandReg.Generation()

	d.mu.Lock()
	defer d.mu.Unlock()

	raw := d.buildJSONLocked(entries)
	compressed, err := tinycompress.Compress(raw)
	if err != nil {
		DebugPrintln("[BuildDict] compression failed: " + err.Error())
		compressed = raw
	}
	d.cachedDict = compressed
	d.cachedGen = gen
	d.dirty = false
	DebugPrintln("[BuildDict] " + itoa(len(raw)) + " bytes, " + itoa(len(compressed)) + " compressed")
}

// Generate returns the compressed dictionary
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	stale := d.dirty || d.cachedGen != d.commandReg.Generation()
	d.mu.RUnlock()
	if cached != nil && !stale {
		return cached
	}
	d.BuildDictionary()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cachedDict
}

// JSON returns the uncompressed dictionary
func (d *Dictionary) JSON() []byte {
	entries := d.commandReg.Entries()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(entries)
}

func (d *Dictionary) buildJSONLocked(entries []*Command) []byte {
	var b bytes.Buffer
	b.Grow(2048)

	b.WriteString(`{"version":`)
	writeJSONString(&b, d.version)
	b.WriteString(`,"build_versions":`)
	writeJSONString(&b, d.buildVersions)

	b.WriteString(`,"config":{`)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, name)
		b.WriteByte(':')
		writeJSONValue(&b, d.constants[name].Value)
	}

	// Commands carry a handler, responses do not
	b.WriteString(`},"commands":{`)
	writeMessages(&b, entries, true)
	b.WriteString(`},"responses":{`)
	writeMessages(&b, entries, false)
	b.WriteByte('}')

	if len(d.enumerations) > 0 {
		b.WriteString(`,"enumerations":{`)
		enums := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enums = append(enums, name)
		}
		sort.Strings(enums)
		for i, name := range enums {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(&b, name)
			b.WriteString(":{")
			values := d.enumerations[name]
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(x, y int) bool { return values[keys[x]] < values[keys[y]] })
			for j, k := range keys {
				if j > 0 {
					b.WriteByte(',')
				}
				writeJSONString(&b, k)
				b.WriteByte(':')
				b.WriteString(itoa(values[k]))
			}
			b.WriteByte('}')
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.Bytes()
}

func writeMessages(b *bytes.Buffer, entries []*Command, commands bool) {
	first := true
	for _, cmd := range entries {
		if (cmd.Handler != nil) != commands {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeJSONString(b, cmd.Signature())
		b.WriteByte(':')
		b.WriteString(itoa(int(cmd.ID)))
	}
}

func writeJSONString(b *bytes.Buffer, s string) {
	b.WriteString(strconv.Quote(s))
}

func writeJSONValue(b *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case string:
		writeJSONString(b, val)
	default:
		b.WriteString(valueToString(v))
	}
}

// GetChunk returns up to count bytes of the compressed dictionary at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
