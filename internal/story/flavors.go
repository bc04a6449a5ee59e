package story

// Flavor is a classification marker attached to a story. Each concrete
// flavor type forms a closed enumeration, and a story holds at most one
// value per enumeration.
type Flavor interface {
	Category() string
	String() string
}

// StorySource indicates from where a story was fetched.
type StorySource int

const (
	SourceRemote StorySource = iota + 1
	SourceArchive
)

func (StorySource) Category() string { return "source" }

func (f StorySource) String() string {
	switch f {
	case SourceRemote:
		return "remote"
	case SourceArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// DataFormat indicates the file format of story data.
type DataFormat int

const (
	FormatEPUB DataFormat = iota + 1
	FormatFPUB
	FormatHTML
	FormatJSON
)

func (DataFormat) Category() string { return "format" }

func (f DataFormat) String() string {
	switch f {
	case FormatEPUB:
		return "epub"
	case FormatFPUB:
		return "fpub"
	case FormatHTML:
		return "html"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// MetaFormat indicates the general structure of story meta.
type MetaFormat int

const (
	MetaAlpha MetaFormat = iota + 1
	MetaBeta
)

func (MetaFormat) Category() string { return "meta" }

func (f MetaFormat) String() string {
	switch f {
	case MetaAlpha:
		return "alpha"
	case MetaBeta:
		return "beta"
	default:
		return "unknown"
	}
}

// MetaPurity indicates if story meta has been sanitized.
type MetaPurity int

const (
	PurityClean MetaPurity = iota + 1
	PurityDirty
)

func (MetaPurity) Category() string { return "purity" }

func (f MetaPurity) String() string {
	switch f {
	case PurityClean:
		return "clean"
	case PurityDirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// UpdateStatus indicates if and how a story has changed. It is assigned
// by the selector and by no other component.
type UpdateStatus int

const (
	StatusCreated UpdateStatus = iota + 1
	StatusRevived
	StatusUpdated
	StatusDeleted
)

func (UpdateStatus) Category() string { return "status" }

func (f UpdateStatus) String() string {
	switch f {
	case StatusCreated:
		return "created"
	case StatusRevived:
		return "revived"
	case StatusUpdated:
		return "updated"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FlavorSet holds at most one flavor per enumeration category.
type FlavorSet map[string]Flavor

// NewFlavorSet builds a set from the given flavors. Later flavors replace
// earlier ones in the same category.
func NewFlavorSet(flavors ...Flavor) FlavorSet {
	set := make(FlavorSet, len(flavors))
	for _, f := range flavors {
		set.Apply(f)
	}
	return set
}

// Apply adds a flavor, replacing any previous flavor in its category.
func (s FlavorSet) Apply(f Flavor) {
	s[f.Category()] = f
}

// Has reports whether the exact flavor is present.
func (s FlavorSet) Has(f Flavor) bool {
	return s[f.Category()] == f
}

// Clone returns an independent copy of the set.
func (s FlavorSet) Clone() FlavorSet {
	out := make(FlavorSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
