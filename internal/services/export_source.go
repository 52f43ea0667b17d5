package services

import (
	"context"
	"fmt"
	"io"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/modules/memory"
)

// exportMaxBytes bounds a single export archive read into memory.
const exportMaxBytes = 512 << 20

// ExportSource resolves an export reference from a job payload into parsed
// conversations.
type ExportSource interface {
	Download(ctx context.Context, ref string) ([]memory.Conversation, error)
}

type exportSource struct {
	log    *logger.Logger
	bucket BucketService
}

func NewExportSource(baseLog *logger.Logger, bucket BucketService) ExportSource {
	return &exportSource{
		log:    baseLog.With("service", "ExportSource"),
		bucket: bucket,
	}
}

func (s *exportSource) Download(ctx context.Context, ref string) ([]memory.Conversation, error) {
	if ref == "" {
		return nil, fmt.Errorf("missing export ref")
	}
	r, err := s.bucket.DownloadFile(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("download export %q: %w", ref, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, exportMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read export %q: %w", ref, err)
	}
	if len(raw) == exportMaxBytes {
		return nil, fmt.Errorf("export %q exceeds %d bytes", ref, exportMaxBytes)
	}

	convs, err := memory.ParseExport(raw)
	if err != nil {
		return nil, err
	}
	s.log.Info("export parsed", "ref", ref, "bytes", len(raw), "conversations", len(convs))
	return convs, nil
}
