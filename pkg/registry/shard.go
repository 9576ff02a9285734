package registry

import (
	"bytes"
)

// Sharding defaults. A single semantic unit larger than the max becomes its
// own oversized shard.
const (
	DefaultMaxShardSize  = 4096 // bytes
	DefaultMaxShardLines = 120
)

// ShardConfig tunes the section-based sharding strategy
type ShardConfig struct {
	MaxShardSize  int
	MaxShardLines int
}

// DefaultShardConfig returns the default sharding knobs
func DefaultShardConfig() ShardConfig {
	return ShardConfig{
		MaxShardSize:  DefaultMaxShardSize,
		MaxShardLines: DefaultMaxShardLines,
	}
}

// Shard is one piece of a sharded document
type Shard struct {
	Index   int
	Heading string // first heading of the shard, "" when none
	Content []byte
	Lines   int
}

// ShardContent splits content into section-aligned shards. Sections begin at
// markdown heading lines; consecutive sections are packed into a shard until
// the size or line limit would be exceeded. Reassemble(shards) reproduces the
// input byte-exactly.
func ShardContent(content []byte, cfg ShardConfig) []Shard {
	if cfg.MaxShardSize <= 0 {
		cfg.MaxShardSize = DefaultMaxShardSize
	}
	if cfg.MaxShardLines <= 0 {
		cfg.MaxShardLines = DefaultMaxShardLines
	}
	if len(content) == 0 {
		return nil
	}

	sections := splitSections(content)

	var shards []Shard
	var current bytes.Buffer
	currentLines := 0
	heading := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		shards = append(shards, Shard{
			Index:   len(shards),
			Heading: heading,
			Content: append([]byte(nil), current.Bytes()...),
			Lines:   currentLines,
		})
		current.Reset()
		currentLines = 0
		heading = ""
	}

	for _, sec := range sections {
		secLines := countLines(sec)
		overSize := current.Len()+len(sec) > cfg.MaxShardSize
		overLines := currentLines+secLines > cfg.MaxShardLines
		if current.Len() > 0 && (overSize || overLines) {
			flush()
		}
		if heading == "" {
			heading = sectionHeading(sec)
		}
		current.Write(sec)
		currentLines += secLines
		// An oversized single section ships alone
		if current.Len() > cfg.MaxShardSize || currentLines > cfg.MaxShardLines {
			flush()
		}
	}
	flush()
	return shards
}

// Reassemble concatenates shards back into the original content
func Reassemble(shards []Shard) []byte {
	var buf bytes.Buffer
	for _, s := range shards {
		buf.Write(s.Content)
	}
	return buf.Bytes()
}

// splitSections cuts content at markdown heading boundaries, preserving
// every byte including line terminators.
func splitSections(content []byte) [][]byte {
	var sections [][]byte
	start := 0
	offset := 0
	for offset < len(content) {
		end := bytes.IndexByte(content[offset:], '\n')
		var next int
		if end < 0 {
			next = len(content)
		} else {
			next = offset + end + 1
		}
		line := content[offset:next]
		if offset > start && isHeading(line) {
			sections = append(sections, content[start:offset])
			start = offset
		}
		offset = next
	}
	if start < len(content) {
		sections = append(sections, content[start:])
	}
	return sections
}

func isHeading(line []byte) bool {
	return len(line) > 0 && line[0] == '#'
}

func sectionHeading(sec []byte) string {
	end := bytes.IndexByte(sec, '\n')
	if end < 0 {
		end = len(sec)
	}
	line := sec[:end]
	if !isHeading(line) {
		return ""
	}
	return string(bytes.TrimSpace(bytes.TrimLeft(line, "#")))
}

func countLines(b []byte) int {
	n := bytes.Count(b, []byte{'\n'})
	if len(b) > 0 && b[len(b)-1] != '\n' {
		n++
	}
	return n
}
