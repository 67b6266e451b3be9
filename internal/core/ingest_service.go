package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jalalidin/knowledgevault/internal/store"
)

const contentPreviewLimit = 1000

// IngestService converts uploads and manual submissions into persisted
// knowledge items with best-effort enrichment. A failed enrichment call never
// fails the request; only file or database errors do.
type IngestService struct {
	store     *store.SQLiteStore
	generator Generator
	uploadDir string
	logger    *zap.Logger
}

func NewIngestService(db *store.SQLiteStore, generator Generator, uploadDir string, logger *zap.Logger) (*IngestService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &IngestService{
		store:     db,
		generator: generator,
		uploadDir: uploadDir,
		logger:    logger,
	}, nil
}

type UploadParams struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
}

// UploadFile persists the raw bytes, runs the document-processing agent over a
// bounded preview, and commits a knowledge item with the merged metadata. The
// item is marked processed once the attempt was made, whether or not the
// agent answered.
func (s *IngestService) UploadFile(ctx context.Context, p UploadParams) (*store.KnowledgeItem, error) {
	// A fresh UUID per upload keeps paths collision-free; O_EXCL guards the
	// remaining window.
	path := filepath.Join(s.uploadDir, uuid.NewString()+"_"+filepath.Base(p.Filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := f.Write(p.Data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close upload file: %w", err)
	}

	// Only declared-text content is decoded for analysis; everything else is
	// treated as opaque.
	fileContent := ""
	if strings.HasPrefix(p.ContentType, "text/") {
		fileContent = string(bytes.ToValidUTF8(p.Data, nil))
	}

	preview := fileContent
	if len(preview) > contentPreviewLimit {
		preview = preview[:contentPreviewLimit]
	}

	analysis := fallbackAnalysis(p.Filename)
	processingError := ""
	prompt := fmt.Sprintf(
		"Process this uploaded file:\n\nFilename: %s\nContent Type: %s\nContent: %s...\n\nProvide: 1) Title, 2) Summary, 3) Key concepts, 4) Suggested tags (comma-separated)",
		p.Filename, p.ContentType, preview,
	)
	response, err := s.generator.Generate(ctx, DocumentProcessor, prompt)
	if err != nil {
		// Recorded informationally; the item is still considered processed.
		processingError = err.Error()
		s.logger.Warn("Document analysis failed, using defaults",
			zap.String("filename", p.Filename), zap.Error(err))
	} else {
		analysis = parseDocumentAnalysis(response, p.Filename)
	}

	item := &store.KnowledgeItem{
		UserID:          p.UserID,
		Title:           analysis.Title,
		Summary:         analysis.Summary,
		Content:         fileContent,
		Type:            store.ItemTypeDocument,
		FileURL:         path,
		FileName:        p.Filename,
		FileSize:        int64(len(p.Data)),
		MimeType:        p.ContentType,
		ObjectPath:      path,
		Metadata:        map[string]any{"original_filename": p.Filename},
		IsProcessed:     true,
		ProcessingError: processingError,
	}
	if err := s.store.CreateKnowledgeItem(item); err != nil {
		return nil, err
	}
	if err := s.attachTags(item, analysis.Tags); err != nil {
		return nil, err
	}
	return item, nil
}

type CreateItemParams struct {
	Title    string
	Summary  string
	Content  string
	Type     store.ItemType
	Tags     []string
	Metadata map[string]any
}

// CreateItem is the manual path: no file I/O, user-supplied fields win. When
// content is present and no summary was given, enrichment is attempted to
// backfill the summary only.
func (s *IngestService) CreateItem(ctx context.Context, userID string, p CreateItemParams) (*store.KnowledgeItem, error) {
	summary := p.Summary
	if p.Content != "" && summary == "" {
		prompt := fmt.Sprintf(
			"Analyze this content and suggest improvements:\n\nTitle: %s\nContent: %s\n\nProvide: 1) Improved title if needed, 2) Summary, 3) Suggested tags",
			p.Title, p.Content,
		)
		response, err := s.generator.Generate(ctx, DocumentProcessor, prompt)
		if err != nil {
			s.logger.Warn("Content analysis failed, leaving summary empty",
				zap.String("title", p.Title), zap.Error(err))
		} else if suggested := extractField(response, "Summary:"); suggested != "" {
			summary = suggested
		}
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	item := &store.KnowledgeItem{
		UserID:      userID,
		Title:       p.Title,
		Summary:     summary,
		Content:     p.Content,
		Type:        p.Type,
		Metadata:    metadata,
		IsProcessed: true,
	}
	if err := s.store.CreateKnowledgeItem(item); err != nil {
		return nil, err
	}
	if err := s.attachTags(item, p.Tags); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *IngestService) attachTags(item *store.KnowledgeItem, names []string) error {
	item.Tags = []string{}
	for _, name := range names {
		tag, err := s.store.GetOrCreateTag(item.UserID, name)
		if err != nil {
			return err
		}
		if err := s.store.AttachTag(item.ID, tag.ID); err != nil {
			return err
		}
		item.Tags = append(item.Tags, tag.Name)
	}
	return nil
}
