package sync

import (
	"context"
	"fmt"
	"strings"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// Unmarshaller pulls nodes from the sync backend into the local store.
// It always operates in sync mode: parents resolve by uuid and existing
// nodes are updated in place with their foreign dates preserved.
type Unmarshaller struct {
	*marshal.ScrapbookUnmarshaller
	client *Client
}

func NewUnmarshaller(stores storage.Stores, client *Client, opts ...marshal.Option) *Unmarshaller {
	opts = append([]marshal.Option{marshal.WithSyncMode()}, opts...)
	return &Unmarshaller{
		ScrapbookUnmarshaller: marshal.NewScrapbookUnmarshaller(stores, nil, opts...),
		client:                client,
	}
}

// PullNode downloads a node and its content from the sync backend and
// stores it. The default shelf exists everywhere and is never pulled.
func (u *Unmarshaller) PullNode(ctx context.Context, syncNode *marshal.Object) error {
	if syncNode.GetString("uuid") == marshal.FormatDefaultShelfUUID {
		return nil
	}

	nodeJSON, err := marshal.MarshalJSONString(syncNode)
	if err != nil {
		return err
	}

	resp, err := u.client.post(ctx, "/sync/pull_node", map[string]any{"node": nodeJSON})
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("sync backend returned no node for %s", syncNode.GetString("uuid"))
	}

	nodeObj := resp.GetObject("node")
	if nodeObj == nil {
		pulled := marshal.NewObject()
		if err := pulled.UnmarshalJSON([]byte(resp.GetString("node"))); err != nil {
			return fmt.Errorf("failed to parse pulled node: %w", err)
		}
		nodeObj = pulled
	}

	content, err := u.deserializeExportedContent(resp.GetString("content"))
	if err != nil {
		return err
	}
	content.Node = u.UnconvertNode(nodeObj)

	if err := u.FindParentInStore(ctx, content.Node); err != nil {
		return err
	}
	if content.Icon != nil {
		content.Node.Set("icon", storage.ComputeIconHash(content.Icon.GetString("data_url")))
	}

	_, err = u.StoreContent(ctx, content)
	return err
}

// deserializeExportedContent parses the three-fragment content blob. The
// header fragment identifies the format and is not consumed.
func (u *Unmarshaller) deserializeExportedContent(blob string) (*marshal.Content, error) {
	content := &marshal.Content{}
	if strings.TrimSpace(blob) == "" {
		return content, nil
	}

	fragments := strings.SplitN(blob, "\n", 3)

	if len(fragments) > 1 {
		iconFragment := marshal.NewObject()
		if err := iconFragment.UnmarshalJSON([]byte(fragments[1])); err != nil {
			return nil, fmt.Errorf("failed to parse content blob: %w", err)
		}
		if icon := iconFragment.GetObject("icon"); icon != nil {
			content.Icon = u.UnconvertIcon(icon)
		}
	}

	if len(fragments) > 2 {
		rest := marshal.NewObject()
		if err := rest.UnmarshalJSON([]byte(fragments[2])); err != nil {
			return nil, fmt.Errorf("failed to parse content blob: %w", err)
		}
		if archive := rest.GetObject("archive"); archive != nil {
			content.Archive = archive
		}
		if notesObj := rest.GetObject("notes"); notesObj != nil {
			content.Notes = notesObj
		}
		if comments := rest.GetObject("comments"); comments != nil {
			content.Comments = comments
		}
	}

	return content, nil
}
