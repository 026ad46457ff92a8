package fatfs

// Mode is the bit set passed to entryops.Find (§4.7). Naming and the
// iota-bitfield style follow the teacher's MountFlags in api.go.
type Mode int

const (
	// READ opens the entry for reading.
	ModeRead = Mode(1 << iota)
	// WRITE opens the entry for writing.
	ModeWrite
	// CREATE creates the entry if it's missing.
	ModeCreate
	// MUST_CREATE fails if the entry already exists.
	ModeMustCreate
	// TRUNCATE shrinks the entry to zero length on open. Requires WRITE;
	// forbidden together with DIR.
	ModeTruncate
	// APPEND starts the write position at the end of the entry.
	ModeAppend
	// DEL marks this call as a delete operation. Requires WRITE.
	ModeDelete
	// DIR means the target may/must be a directory.
	ModeDir
	// FILE means the target may/must be a file.
	ModeFile
)

func (m Mode) has(bit Mode) bool { return m&bit != 0 }

func (m Mode) CanRead() bool      { return m.has(ModeRead) }
func (m Mode) CanWrite() bool     { return m.has(ModeWrite) }
func (m Mode) WantsCreate() bool  { return m.has(ModeCreate) }
func (m Mode) MustCreate() bool   { return m.has(ModeMustCreate) }
func (m Mode) WantsTruncate() bool { return m.has(ModeTruncate) }
func (m Mode) WantsAppend() bool  { return m.has(ModeAppend) }
func (m Mode) IsDelete() bool     { return m.has(ModeDelete) }
func (m Mode) AllowsDir() bool    { return m.has(ModeDir) }
func (m Mode) AllowsFile() bool   { return m.has(ModeFile) }

// Validate checks the illegal-combination rules from spec §4.7 and returns
// ErrInvalidAccessMode if any are violated.
func (m Mode) Validate() error {
	if !m.CanRead() && !m.CanWrite() {
		return ErrInvalidAccessMode.WithMessage("neither READ nor WRITE set")
	}
	if !m.AllowsDir() && !m.AllowsFile() {
		return ErrInvalidAccessMode.WithMessage("neither DIR nor FILE set")
	}
	if m.AllowsDir() && m.WantsTruncate() {
		return ErrInvalidAccessMode.WithMessage("DIR is incompatible with TRUNCATE")
	}
	if m.IsDelete() && !m.CanWrite() {
		return ErrInvalidAccessMode.WithMessage("DEL requires WRITE")
	}
	if m.WantsTruncate() && !m.CanWrite() {
		return ErrInvalidAccessMode.WithMessage("TRUNCATE requires WRITE")
	}
	if m.WantsCreate() && m.AllowsDir() && m.AllowsFile() {
		return ErrInvalidAccessMode.WithMessage("CREATE requires exactly one of DIR or FILE")
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// §3.3 directory entry attribute byte.

const (
	AttrReadOnly  = 1 << iota // AttrReadOnly marks an entry read-only.
	AttrHidden                // AttrHidden hides the entry from normal listings.
	AttrSystem                // AttrSystem marks an OS-essential entry.
	AttrVolumeID              // AttrVolumeID marks the volume-label entry.
	AttrDirectory             // AttrDirectory marks a subdirectory.
	AttrArchive               // AttrArchive is set whenever the entry is created or modified.
)

// AttrLongName is the attribute byte value (READ_ONLY|HIDDEN|SYSTEM|VOLUME_ID)
// that marks a slot as an LFN continuation rather than an 8.3 entry.
const AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID

////////////////////////////////////////////////////////////////////////////////
// §3.1 journal_state bit set.

type JournalState int

const (
	JournalOpen JournalState = 1 << iota
	JournalStarted
	JournalReplaying
)
