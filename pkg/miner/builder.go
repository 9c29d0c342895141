package miner

import (
	"strings"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// Builder is a write-only accumulator of update statements scoped to one
// extractor call. The controller creates a fresh Builder per dispatch and
// reclaims it on completion; the extractor only ever appends to it.
type Builder struct {
	uri          uri.URI
	fileName     string
	lastModified time.Time
	isDirectory  bool
	parentURI    uri.URI
	lines        []string
}

// NewBuilder returns an empty builder scoped to uri.
func NewBuilder(u uri.URI) *Builder {
	return &Builder{uri: u}
}

// SetFileName records the display name of the indexed entity.
func (b *Builder) SetFileName(name string) { b.fileName = name }

// SetLastModified records the mtime to persist as the up-to-date check.
func (b *Builder) SetLastModified(t time.Time) { b.lastModified = t }

// SetIsDirectory records whether the entity is a directory.
func (b *Builder) SetIsDirectory(v bool) { b.isDirectory = v }

// SetParent records the containing directory's URI.
func (b *Builder) SetParent(p uri.URI) { b.parentURI = p }

// AddLine appends an arbitrary extractor-supplied statement line, carried
// through to the store's payload column verbatim.
func (b *Builder) AddLine(line string) { b.lines = append(b.lines, line) }

// BatchText renders the idempotent "DROP GRAPH <uri>; <contents>" update
// text the store sink expects, per §4.6 / §6. The structured fields set via
// SetFileName/SetLastModified/SetIsDirectory/SetParent are emitted as
// key=value tokens the store parses directly; AddLine contents are carried
// through as opaque payload tokens.
func (b *Builder) BatchText() string {
	var sb strings.Builder
	sb.WriteString("DROP GRAPH <")
	sb.WriteString(string(b.uri))
	sb.WriteString(">; ")
	sb.WriteString("fileName=")
	sb.WriteString(b.fileName)
	sb.WriteString(" ")
	if !b.lastModified.IsZero() {
		sb.WriteString("lastModified=")
		sb.WriteString(b.lastModified.UTC().Format(time.RFC3339))
		sb.WriteString(" ")
	}
	sb.WriteString("isDirectory=")
	if b.isDirectory {
		sb.WriteString("true ")
	} else {
		sb.WriteString("false ")
	}
	if b.parentURI != "" {
		sb.WriteString("parentURI=")
		sb.WriteString(string(b.parentURI))
		sb.WriteString(" ")
	}
	for _, l := range b.lines {
		sb.WriteString(l)
		sb.WriteString(" ")
	}
	return sb.String()
}
