package storage

import "time"

// NodeType enumerates the kinds of entries in the bookmark tree.
type NodeType int

const (
	NodeTypeShelf NodeType = iota + 1
	NodeTypeFolder
	NodeTypeBookmark
	NodeTypeArchive
	NodeTypeSeparator
	NodeTypeNotes
)

// NodeTypeNames maps node types to the names used by portable formats.
var NodeTypeNames = map[NodeType]string{
	NodeTypeShelf:     "shelf",
	NodeTypeFolder:    "folder",
	NodeTypeBookmark:  "bookmark",
	NodeTypeArchive:   "archive",
	NodeTypeSeparator: "separator",
	NodeTypeNotes:     "notes",
}

// NodeTypesByName is the inverse of NodeTypeNames.
var NodeTypesByName = map[string]NodeType{
	"shelf":     NodeTypeShelf,
	"folder":    NodeTypeFolder,
	"bookmark":  NodeTypeBookmark,
	"archive":   NodeTypeArchive,
	"separator": NodeTypeSeparator,
	"notes":     NodeTypeNotes,
}

// TodoState enumerates TODO workflow states of a node.
type TodoState int

const (
	TodoStateTodo TodoState = iota + 1
	TodoStateWaiting
	TodoStatePostponed
	TodoStateDone
	TodoStateCancelled
)

var TodoStateNames = map[TodoState]string{
	TodoStateTodo:      "TODO",
	TodoStateWaiting:   "WAITING",
	TodoStatePostponed: "POSTPONED",
	TodoStateDone:      "DONE",
	TodoStateCancelled: "CANCELLED",
}

var TodoStatesByName = map[string]TodoState{
	"TODO":      TodoStateTodo,
	"WAITING":   TodoStateWaiting,
	"POSTPONED": TodoStatePostponed,
	"DONE":      TodoStateDone,
	"CANCELLED": TodoStateCancelled,
}

// External backend types. An empty external means the node lives only in
// the local database and its disk mirror.
const (
	BrowserExternalType = "browser"
	CloudExternalType   = "cloud"
	RDFExternalType     = "rdf"
)

// NonSynchronizedExternals lists backends whose nodes the disk adapter
// must not mirror.
var NonSynchronizedExternals = []string{
	BrowserExternalType,
	CloudExternalType,
	RDFExternalType,
}

// IsNonSynchronized reports whether nodes of the given external kind are
// excluded from disk mirroring.
func IsNonSynchronized(external string) bool {
	for _, kind := range NonSynchronizedExternals {
		if kind == external {
			return true
		}
	}
	return false
}

const (
	DefaultShelfID   int64 = 1
	DefaultShelfUUID       = "1"
	DefaultShelfName       = "default"

	CloudShelfUUID = "cloud"
	CloudShelfName = "cloud"

	// DefaultPosition sorts nodes without an explicit sibling order last.
	DefaultPosition int64 = 2147483647
)

// Archive content type tags used by portable formats.
const (
	ArchiveTypeBytes = "bytes"
	ArchiveTypeText  = "text"
)

// NodeProperties is the canonical attribute whitelist. Sanitization drops
// anything not listed here before a write, so that records produced by
// newer format versions do not pollute the store.
var NodeProperties = []string{
	"id",
	"pos",
	"uri",
	"name",
	"type",
	"size",
	"uuid",
	"icon",
	"tags",
	"details",
	"parent_id",
	"todo_date",
	"todo_state",
	"date_added",
	"date_modified",
	"content_modified",
	"stored_icon",
	"has_notes",
	"has_comments",
	"external",
	"external_id",
	"content_type",
	"contains",
}

// Node is a single entry in the bookmark hierarchy.
type Node struct {
	ID              int64
	UUID            string
	ParentID        *int64
	Type            NodeType
	Name            string
	URI             string
	Pos             int64
	Tags            string
	Details         string
	Icon            string // content hash reference, not the icon bytes
	Size            int64
	ContentType     string
	Contains        string
	TodoState       *TodoState
	TodoDate        string
	External        string
	ExternalID      string
	StoredIcon      bool
	HasNotes        bool
	HasComments     bool
	DateAdded       time.Time
	DateModified    time.Time
	ContentModified *time.Time
}

// HasSomeContent reports whether the node owns any dependent content.
func (n *Node) HasSomeContent() bool {
	return n.Type == NodeTypeArchive || n.StoredIcon || n.HasNotes || n.HasComments
}

// IsContainer reports whether the node may have children.
func (n *Node) IsContainer() bool {
	return n.Type == NodeTypeShelf || n.Type == NodeTypeFolder
}

// Archive is the captured page payload of an archive node.
// Object holds the raw content. ByteLength present means the content is
// binary; absent means Object is UTF-8 text.
type Archive struct {
	NodeID     int64
	Object     []byte
	ByteLength *int64
	Type       string // MIME content type
}

// IsBinary reports whether the archive was created from a non-text source.
func (a *Archive) IsBinary() bool {
	return a.ByteLength != nil
}

// Notes formats.
const (
	NotesFormatOrg      = "org"
	NotesFormatMarkdown = "markdown"
	NotesFormatHTML     = "html"
	NotesFormatDelta    = "delta"
	NotesFormatText     = "text"
)

// Notes is a freeform note attached to a node.
type Notes struct {
	NodeID  int64
	Content string
	Format  string
	HTML    string // pre-rendered view, present when Format is "delta"
	Align   string
	Width   int64
}

// Icon is a favicon attached to a node, stored as a data URL.
type Icon struct {
	NodeID  int64
	DataURL string
}

// Index is a full-text index row: the word set extracted from one kind of
// content of a node. Derived data, rebuilt whenever the content changes.
type Index struct {
	NodeID int64
	Words  []string
}
