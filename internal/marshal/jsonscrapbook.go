package marshal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"scrapyard/internal/storage"
)

// JSON Scrapbook is the portable, versioned, newline-delimited JSON file
// format for full-shelf export and import: a single meta line followed by
// one content object per node.
const (
	JSONScrapbookFormat  = "JSON Scrapbook"
	JSONScrapbookVersion = 1

	JSONScrapbookShelves = "shelves"
	JSONScrapbookFolders = "folders"

	// FormatDefaultShelfUUID aliases the local default-shelf uuid in
	// portable files.
	FormatDefaultShelfUUID = "default"
)

var (
	// ErrInvalidFormat is returned when a file lacks a parsable meta line.
	ErrInvalidFormat = errors.New("invalid file format")
	// ErrUnsupportedVersion is returned when a file declares a format
	// version newer than the importer supports.
	ErrUnsupportedVersion = errors.New("export format version is not supported")
)

// serializedFieldOrder is the canonical key order of exported nodes.
// Unrecognized fields are appended after the canonical set, never dropped.
var serializedFieldOrder = []string{
	"type",
	"uuid",
	"parent",
	"title",
	"url",
	"content_type",
	"size",
	"tags",
	"date_added",
	"date_modified",
	"content_modified",
	"external",
	"external_id",
	"stored_icon",
	"has_comments",
	"has_notes",
	"todo_state",
	"todo_date",
	"details",
	"pos",
}

// ScrapbookMarshaller writes the JSON Scrapbook file format.
type ScrapbookMarshaller struct {
	*Marshaller
	nodes storage.NodeStore
	w     io.Writer
}

// NewScrapbookMarshaller creates a marshaller that exports through the
// given stores to w.
func NewScrapbookMarshaller(stores storage.Stores, w io.Writer) *ScrapbookMarshaller {
	return &ScrapbookMarshaller{
		Marshaller: NewMarshaller(stores),
		nodes:      stores.Nodes,
		w:          w,
	}
}

func convertUUIDsToFormat(obj *Object) {
	if obj.GetString("uuid") == storage.DefaultShelfUUID {
		obj.Set("uuid", FormatDefaultShelfUUID)
	}
	if obj.GetString("parent") == storage.DefaultShelfUUID {
		obj.Set("parent", FormatDefaultShelfUUID)
	}
}

// ConvertNode turns a wire node into its portable shape: the local id is
// dropped, the parent reference becomes a uuid, fields are renamed for
// portability and reordered to the canonical key order.
func (m *ScrapbookMarshaller) ConvertNode(ctx context.Context, obj *Object) (*Object, error) {
	obj.Delete("id")

	// the default shelf exists everywhere; its dates are meaningless
	if obj.GetString("uuid") == storage.DefaultShelfUUID {
		obj.Set("date_added", int64(0))
		obj.Set("date_modified", int64(0))
	}

	if parentID, ok := obj.GetInt64("parent_id"); ok {
		parentUUID, err := m.nodes.UUIDFromID(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent uuid: %w", err)
		}
		obj.Rename("parent_id", "parent")
		obj.Set("parent", parentUUID)
	}

	obj.Rename("uri", "url")
	obj.Rename("name", "title")

	if t, ok := obj.GetInt64("type"); ok {
		obj.Set("type", storage.NodeTypeNames[storage.NodeType(t)])
	}
	if state, ok := obj.GetInt64("todo_state"); ok {
		obj.Set("todo_state", storage.TodoStateNames[storage.TodoState(state)])
	}

	// the icon content hash is local bookkeeping
	obj.Delete("icon")

	convertUUIDsToFormat(obj)
	obj.Reorder(serializedFieldOrder)

	return obj, nil
}

// ConvertArchive turns a wire archive into its portable shape, replacing
// the internal binary marker with a "bytes"/"text" type tag.
func (m *ScrapbookMarshaller) ConvertArchive(obj *Object) *Object {
	converted := NewObject()

	converted.Set("content_type", obj.GetString("type"))
	if obj.Has("byte_length") {
		converted.Set("type", storage.ArchiveTypeBytes)
	} else {
		converted.Set("type", storage.ArchiveTypeText)
	}
	if content, ok := obj.Get("object"); ok {
		converted.Set("content", content)
	}

	return converted
}

// ConvertComments renames the comment text field for portability.
func (m *ScrapbookMarshaller) ConvertComments(obj *Object) *Object {
	obj.Rename("text", "content")
	return obj
}

// ConvertIcon renames the icon data URL field for portability.
func (m *ScrapbookMarshaller) ConvertIcon(obj *Object) *Object {
	obj.Rename("data_url", "url")
	return obj
}

// ConvertIndex renames the index word list field for portability.
func (m *ScrapbookMarshaller) ConvertIndex(obj *Object) *Object {
	obj.Rename("words", "content")
	return obj
}

// ConvertContent converts a serialized content bundle into one portable
// envelope object.
func (m *ScrapbookMarshaller) ConvertContent(ctx context.Context, content *Content) (*Object, error) {
	node, err := m.ConvertNode(ctx, content.Node)
	if err != nil {
		return nil, err
	}

	envelope := NewObject()
	envelope.Set("node", node)
	if content.Archive != nil {
		envelope.Set("archive", m.ConvertArchive(content.Archive))
	}
	if content.Notes != nil {
		envelope.Set("notes", content.Notes)
	}
	if content.Comments != nil {
		envelope.Set("comments", m.ConvertComments(content.Comments))
	}
	if content.Icon != nil {
		envelope.Set("icon", m.ConvertIcon(content.Icon))
	}

	return envelope, nil
}

// MarshalMeta writes the meta line opening an export file.
func (m *ScrapbookMarshaller) MarshalMeta(name string, entities int, comment string) error {
	now := time.Now()

	meta := NewObject()
	meta.Set("format", JSONScrapbookFormat)
	meta.Set("version", JSONScrapbookVersion)
	meta.Set("type", "export")
	meta.Set("contains", JSONScrapbookFolders)
	if name != "" {
		meta.Set("title", name)
	}
	meta.Set("uuid", strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
	meta.Set("entities", entities)
	meta.Set("timestamp", now.UnixMilli())
	meta.Set("date", now.Format(time.RFC3339))
	if comment != "" {
		meta.Set("comment", comment)
	}

	line, err := MarshalJSONString(meta)
	if err != nil {
		return err
	}

	_, err = io.WriteString(m.w, line)
	return err
}

// Marshal writes the content object of one node as the next line of the
// export file.
func (m *ScrapbookMarshaller) Marshal(ctx context.Context, node *storage.Node) error {
	content, err := m.SerializeContent(ctx, node)
	if err != nil {
		return err
	}

	envelope, err := m.ConvertContent(ctx, content)
	if err != nil {
		return err
	}

	line, err := MarshalJSONString(envelope)
	if err != nil {
		return err
	}

	_, err = io.WriteString(m.w, "\n"+line)
	return err
}

// ExportNodes writes a complete export file: the meta line followed by one
// line per node. Parents must precede their children for the importer to
// resolve the tree.
func (m *ScrapbookMarshaller) ExportNodes(ctx context.Context, name string, nodes []*storage.Node, comment string) error {
	if err := m.MarshalMeta(name, len(nodes), comment); err != nil {
		return err
	}

	for _, node := range nodes {
		if err := m.Marshal(ctx, node); err != nil {
			return err
		}
	}

	return nil
}

// ScrapbookUnmarshaller reads the JSON Scrapbook file format. A session
// assigns sequential ids starting at 2 (1 is reserved for the default
// shelf) and resolves parent uuids through a map built incrementally as
// lines are read; a child line appearing before its parent silently falls
// back to the default shelf. Session state is never shared between
// imports.
type ScrapbookUnmarshaller struct {
	*Unmarshaller
	r        *bufio.Reader
	nextID   int64
	uuidToID map[string]int64
}

// NewScrapbookUnmarshaller creates an import session reading from r.
// r may be nil for consumers that use only the conversion methods.
func NewScrapbookUnmarshaller(stores storage.Stores, r io.Reader, opts ...Option) *ScrapbookUnmarshaller {
	u := &ScrapbookUnmarshaller{
		Unmarshaller: NewUnmarshaller(stores, opts...),
		nextID:       2,
		uuidToID:     map[string]int64{storage.DefaultShelfUUID: storage.DefaultShelfID},
	}
	if r != nil {
		u.r = bufio.NewReader(r)
	}
	return u
}

func convertUUIDsFromFormat(obj *Object) {
	if obj.GetString("uuid") == FormatDefaultShelfUUID {
		obj.Set("uuid", storage.DefaultShelfUUID)
	}
	if obj.GetString("parent") == FormatDefaultShelfUUID {
		obj.Set("parent", storage.DefaultShelfUUID)
	}
}

// UnconvertNode reverses the portable node shape back to wire fields.
// The parent uuid reference is left in place for the caller to resolve.
func (u *ScrapbookUnmarshaller) UnconvertNode(obj *Object) *Object {
	convertUUIDsFromFormat(obj)

	obj.Rename("url", "uri")
	obj.Rename("title", "name")

	if name := obj.GetString("type"); name != "" {
		obj.Set("type", int64(storage.NodeTypesByName[name]))
	}
	if name := obj.GetString("todo_state"); name != "" {
		obj.Set("todo_state", int64(storage.TodoStatesByName[name]))
	}

	return obj
}

// UnconvertArchive reverses the portable archive shape, restoring the
// binary marker from the "bytes" type tag.
func (u *ScrapbookUnmarshaller) UnconvertArchive(obj *Object) *Object {
	unconverted := NewObject()

	if content, ok := obj.Get("content"); ok {
		unconverted.Set("object", content)
	}
	if obj.GetString("type") == storage.ArchiveTypeBytes {
		// the exact byte count is restored after base64 decoding
		unconverted.Set("byte_length", int64(0))
	}
	unconverted.Set("type", obj.GetString("content_type"))

	return unconverted
}

// UnconvertComments reverses the portable comments shape.
func (u *ScrapbookUnmarshaller) UnconvertComments(obj *Object) *Object {
	obj.Rename("content", "text")
	return obj
}

// UnconvertIcon reverses the portable icon shape.
func (u *ScrapbookUnmarshaller) UnconvertIcon(obj *Object) *Object {
	obj.Rename("url", "data_url")
	return obj
}

// UnconvertIndex reverses the portable index shape.
func (u *ScrapbookUnmarshaller) UnconvertIndex(obj *Object) *Object {
	obj.Rename("content", "words")
	return obj
}

// FindParentInStore resolves the parent uuid reference against the node
// store. Used in sync mode, where local session ids do not apply.
func (u *ScrapbookUnmarshaller) FindParentInStore(ctx context.Context, obj *Object) error {
	parentUUID := obj.GetString("parent")
	if parentUUID == "" {
		return nil
	}
	obj.Delete("parent")

	parent, err := u.Stores().Nodes.GetByUUID(ctx, parentUUID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no parent for node: %s", obj.GetString("uuid"))
		}
		return err
	}

	obj.Set("parent_id", parent.ID)
	return nil
}

// findParentInStream assigns the node its session id and resolves the
// parent reference from the uuids seen so far.
func (u *ScrapbookUnmarshaller) findParentInStream(obj *Object) {
	id := u.nextID
	u.nextID++
	obj.Set("id", id)
	u.uuidToID[obj.GetString("uuid")] = id

	if parentUUID := obj.GetString("parent"); parentUUID != "" {
		parentID, ok := u.uuidToID[parentUUID]
		if !ok {
			parentID = storage.DefaultShelfID
		}
		obj.Set("parent_id", parentID)
		obj.Delete("parent")
	}
}

func (u *ScrapbookUnmarshaller) readLine() (string, error) {
	if u.r == nil {
		return "", io.EOF
	}

	for {
		line, err := u.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
		if err != nil {
			return "", io.EOF
		}
	}
}

// UnmarshalMeta reads and validates the meta line. A missing or malformed
// meta line fails with ErrInvalidFormat; a version newer than the
// supported one fails with ErrUnsupportedVersion.
func (u *ScrapbookUnmarshaller) UnmarshalMeta() (*Object, error) {
	line, err := u.readLine()
	if err != nil {
		return nil, ErrInvalidFormat
	}

	line = strings.TrimPrefix(line, "[")
	line = strings.TrimSuffix(line, ",")

	meta := NewObject()
	if err := meta.UnmarshalJSON([]byte(line)); err != nil {
		return nil, ErrInvalidFormat
	}

	if meta.GetString("format") == JSONScrapbookFormat {
		if version, ok := meta.GetInt64("version"); ok && version > JSONScrapbookVersion {
			return nil, ErrUnsupportedVersion
		}
	}

	return meta, nil
}

// Unmarshal reads the next content object from the file, reversing the
// portable field shapes. Returns io.EOF at the end of the stream.
func (u *ScrapbookUnmarshaller) Unmarshal(ctx context.Context) (*Content, error) {
	line, err := u.readLine()
	if err != nil {
		return nil, io.EOF
	}

	envelope := NewObject()
	if err := envelope.UnmarshalJSON([]byte(line)); err != nil {
		return nil, fmt.Errorf("failed to parse content line: %w", err)
	}

	return u.UnconvertContent(ctx, envelope)
}

// UnconvertContent reverses one portable content envelope.
func (u *ScrapbookUnmarshaller) UnconvertContent(ctx context.Context, envelope *Object) (*Content, error) {
	nodeObj := envelope.GetObject("node")
	if nodeObj == nil {
		return nil, fmt.Errorf("content line without a node: %w", ErrInvalidFormat)
	}

	content := &Content{Node: u.UnconvertNode(nodeObj)}

	if u.SyncMode() {
		if err := u.FindParentInStore(ctx, content.Node); err != nil {
			return nil, err
		}
	} else {
		u.findParentInStream(content.Node)
	}

	if archive := envelope.GetObject("archive"); archive != nil {
		content.Archive = u.UnconvertArchive(archive)
	}
	if n := envelope.GetObject("notes"); n != nil {
		content.Notes = n
	}
	if comments := envelope.GetObject("comments"); comments != nil {
		content.Comments = u.UnconvertComments(comments)
	}
	if icon := envelope.GetObject("icon"); icon != nil {
		content.Icon = u.UnconvertIcon(icon)
		content.Node.Set("icon", storage.ComputeIconHash(content.Icon.GetString("data_url")))
	}

	return content, nil
}

// ImportAll reads the whole file after the meta line, storing every
// content object. Format errors abort the import.
func (u *ScrapbookUnmarshaller) ImportAll(ctx context.Context) (int, error) {
	imported := 0
	for {
		content, err := u.Unmarshal(ctx)
		if errors.Is(err, io.EOF) {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}

		if _, err := u.StoreContent(ctx, content); err != nil {
			return imported, err
		}
		imported++
	}
}
