package export

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"prioritylist/api/internal/logger"
	"prioritylist/api/internal/tree"
)

// SubtreeLoader resolves the portion of a caller's tree being exported.
type SubtreeLoader interface {
	Subtree(ctx context.Context, caller tree.Caller, id string, depth int) (tree.Subtree, error)
}

// Service provides list export functionality
type Service struct {
	trees   SubtreeLoader
	storage *Storage
	pdf     pdfRenderer
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates an export service. storage may be nil.
func NewService(trees SubtreeLoader, storage *Storage, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{trees: trees, storage: storage, pdf: chromePDF, log: log, now: time.Now}
}

// Export renders the requested subtree in the requested format.
func (s *Service) Export(ctx context.Context, caller tree.Caller, req Request) (*Result, error) {
	if req.Format == "" {
		req.Format = FormatHTML
	}
	if req.Format != FormatHTML && req.Format != FormatPDF {
		return nil, ErrUnsupportedFormat
	}
	if req.Store && s.storage == nil {
		return nil, ErrStorageUnavailable
	}

	st, err := s.trees.Subtree(ctx, caller, req.NodeID, req.Depth)
	if err != nil {
		return nil, fmt.Errorf("load subtree: %w", err)
	}

	data := TemplateData{
		Title:       st.Name,
		Note:        st.Note,
		GeneratedAt: s.now().UTC(),
		Items:       toItems(st.Children),
		Completed:   completedItems(st.Completed),
	}
	data.Count = countItems(data.Items)

	html, err := RenderTreeHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	result := &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(st.Name) + ".html",
		MimeType: "text/html; charset=utf-8",
	}
	if req.Format == FormatPDF {
		pdf, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		result.Data = pdf
		result.Filename = sanitizeFilename(st.Name) + ".pdf"
		result.MimeType = "application/pdf"
	}

	if req.Store {
		key := path.Join(caller.OwnerID, uuid.NewString(), result.Filename)
		link, expiresAt, err := s.storage.Put(ctx, key, result.MimeType, result.Data)
		if err != nil {
			return nil, err
		}
		result.DownloadURL = link
		result.ExpiresAt = &expiresAt
		s.log.Info("export stored", "owner_id", caller.OwnerID, "node_id", req.NodeID, "key", key, "bytes", len(result.Data))
	}
	return result, nil
}

func toItems(children []tree.Subtree) []TemplateItem {
	items := make([]TemplateItem, 0, len(children))
	for _, child := range children {
		item := TemplateItem{
			Name:      child.Name,
			Note:      child.Note,
			Children:  toItems(child.Children),
			Completed: completedItems(child.Completed),
		}
		if child.URL != nil {
			item.URL = *child.URL
		}
		items = append(items, item)
	}
	return items
}

func completedItems(nodes []tree.Node) []TemplateItem {
	items := make([]TemplateItem, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, TemplateItem{Name: n.Name})
	}
	return items
}

func countItems(items []TemplateItem) int {
	n := len(items)
	for _, item := range items {
		n += countItems(item.Children)
	}
	return n
}
