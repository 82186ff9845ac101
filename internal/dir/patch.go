package dir

import (
	"path"

	"github.com/marmos91/filemq/internal/file"
	"github.com/marmos91/filemq/internal/logger"
)

// Operation is the kind of change a patch carries. Values match the wire
// operation codes.
type Operation uint8

const (
	Create Operation = 1
	Delete Operation = 2
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Patch is one create or delete of one file, addressed by virtual path.
type Patch struct {
	op      Operation
	dir     string
	record  *file.Record
	virtual string

	digest   string
	digested bool
}

// NewPatch builds a patch for rec, found under directory dir. The virtual
// path is alias joined with the name of rec relative to dir.
func NewPatch(dir string, rec *file.Record, op Operation, alias string) *Patch {
	return &Patch{
		op:      op,
		dir:     dir,
		record:  rec.Dup(),
		virtual: VirtualPath(alias, rec.Name(dir)),
	}
}

// VirtualPath joins alias and a relative name with single slashes.
func VirtualPath(alias, name string) string {
	return path.Join("/", alias, name)
}

func (p *Patch) Op() Operation        { return p.op }
func (p *Patch) Dir() string          { return p.dir }
func (p *Patch) Record() *file.Record { return p.record }
func (p *Patch) Virtual() string      { return p.virtual }

// Digest returns the content digest of a create patch, computing it on
// first use. Delete patches and unreadable files have no digest.
func (p *Patch) Digest() string {
	if p.op != Create || p.digested {
		return p.digest
	}
	p.digested = true

	d, err := p.record.Digest()
	if err != nil {
		logger.Debug("No digest for %s: %v", p.virtual, err)
		return ""
	}
	p.digest = d
	return p.digest
}

// Dup returns a copy that shares the memoized digest but owns its record.
func (p *Patch) Dup() *Patch {
	return &Patch{
		op:       p.op,
		dir:      p.dir,
		record:   p.record.Dup(),
		virtual:  p.virtual,
		digest:   p.digest,
		digested: p.digested,
	}
}
