package handlers

import (
	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/jobs"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
	"github.com/feichai0017/pdf-extractor/pkg/storage"
)

type Handlers struct {
	Extraction *ExtractionHandler
}

func NewHandlers(
	ext *extractor.Extractor,
	store *jobs.Store,
	pool *jobs.Pool,
	q Queue,
	artifacts storage.Storage,
	defaults extractor.Options,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Extraction: NewExtractionHandler(ext, store, pool, q, artifacts, defaults, log),
	}
}
