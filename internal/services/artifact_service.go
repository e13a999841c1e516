// internal/services/artifact_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

const pdfContentType = "application/pdf"

// ApprovalArtifactKey is the canonical storage key of a request's approval
// certificate. Other tools locate certificates by this name.
func ApprovalArtifactKey(id uuid.UUID) string {
	return fmt.Sprintf("od_letters/approved_%s.pdf", id)
}

// ODLetterKey is the canonical storage key of a request's OD letter.
func ODLetterKey(id uuid.UUID) string {
	return fmt.Sprintf("od_letters/od_letter_%s.pdf", id)
}

type Artifact struct {
	Key  string
	Data []byte
	// Rendered is true when this call invoked the renderer.
	Rendered bool
}

// artifactKind describes one cached document type.
type artifactKind struct {
	name   string
	key    func(uuid.UUID) string
	ref    func(*models.ODRequest) string
	patch  func(string) models.ODRequestPatch
	render func(DocumentRenderer, context.Context, DocumentData) ([]byte, error)
}

var (
	approvalArtifact = artifactKind{
		name: "approval certificate",
		key:  ApprovalArtifactKey,
		ref:  func(r *models.ODRequest) string { return r.ApprovedPDFPath },
		patch: func(key string) models.ODRequestPatch {
			return models.ODRequestPatch{ApprovedPDFPath: &key}
		},
		render: DocumentRenderer.RenderApproval,
	}
	odLetterArtifact = artifactKind{
		name: "OD letter",
		key:  ODLetterKey,
		ref:  func(r *models.ODRequest) string { return r.ODLetterPath },
		patch: func(key string) models.ODRequestPatch {
			return models.ODRequestPatch{ODLetterPath: &key}
		},
		render: DocumentRenderer.RenderODLetter,
	}
)

// ArtifactService caches generated PDFs per request. Creation for one
// request id is serialized; the request store is only touched to read the
// record and to write the reference.
type ArtifactService struct {
	requests    repository.ODRequestStore
	directory   *DirectoryService
	store       ObjectStore
	renderer    DocumentRenderer
	clock       Clock
	timeout     time.Duration
	institution string
	locks       *keyedMutex
	logger      *logrus.Entry
}

type ArtifactConfig struct {
	RendererTimeout time.Duration
	Institution     string
}

func NewArtifactService(
	requests repository.ODRequestStore,
	directory *DirectoryService,
	store ObjectStore,
	renderer DocumentRenderer,
	clock Clock,
	cfg ArtifactConfig,
	logger *logrus.Entry,
) *ArtifactService {
	if cfg.RendererTimeout <= 0 {
		cfg.RendererTimeout = 10 * time.Second
	}
	return &ArtifactService{
		requests:    requests,
		directory:   directory,
		store:       store,
		renderer:    renderer,
		clock:       clock,
		timeout:     cfg.RendererTimeout,
		institution: cfg.Institution,
		locks:       newKeyedMutex(),
		logger:      logger.WithField("component", "artifacts"),
	}
}

// GetOrCreateApproval returns the cached certificate when its reference is
// still backed by a stored object, adopts a canonically named object when the
// reference is stale, and renders a new one otherwise.
func (s *ArtifactService) GetOrCreateApproval(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	return s.getOrCreate(ctx, id, approvalArtifact)
}

// RegenerateApproval always renders and overwrites the certificate. When the
// render fails any earlier certificate is discarded, so the next
// GetOrCreateApproval renders from the current record.
func (s *ArtifactService) RegenerateApproval(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	artifact, err := s.create(ctx, req, approvalArtifact)
	if err != nil {
		s.discard(ctx, req, approvalArtifact)
		return nil, err
	}
	return artifact, nil
}

func (s *ArtifactService) GetOrCreateODLetter(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	return s.getOrCreate(ctx, id, odLetterArtifact)
}

func (s *ArtifactService) getOrCreate(ctx context.Context, id uuid.UUID, kind artifactKind) (*Artifact, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(logrus.Fields{"request_id": id, "artifact": kind.name})

	// Cached reference still backed by storage
	if ref := kind.ref(req); ref != "" {
		data, err := s.store.Get(ctx, ref)
		if err == nil {
			return &Artifact{Key: ref, Data: data}, nil
		}
		if !errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("read cached %s: %w", kind.name, err)
		}
		logger.WithField("key", ref).Warn("Cached artifact reference is stale")
	}

	// Repair from the canonical key
	canonical := kind.key(id)
	if kind.ref(req) != canonical {
		exists, err := s.store.Exists(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("check canonical %s: %w", kind.name, err)
		}
		if exists {
			data, err := s.store.Get(ctx, canonical)
			if err != nil {
				return nil, fmt.Errorf("read canonical %s: %w", kind.name, err)
			}
			if err := s.persistRef(ctx, id, kind, canonical); err != nil {
				return nil, err
			}
			logger.WithField("key", canonical).Info("Adopted existing artifact")
			return &Artifact{Key: canonical, Data: data}, nil
		}
	}

	return s.create(ctx, req, kind)
}

// create renders, stores and records an artifact. Callers hold the id lock.
func (s *ArtifactService) create(ctx context.Context, req *models.ODRequest, kind artifactKind) (*Artifact, error) {
	data, err := s.documentData(ctx, req)
	if err != nil {
		return nil, err
	}

	rendered, err := s.render(ctx, kind, data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", kind.name, err)
	}

	key := kind.key(req.ID)
	if err := s.store.Put(ctx, key, rendered, pdfContentType); err != nil {
		return nil, fmt.Errorf("store %s: %w", kind.name, err)
	}
	if err := s.persistRef(ctx, req.ID, kind, key); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"artifact":   kind.name,
		"key":        key,
		"size":       len(rendered),
	}).Info("Artifact generated")

	return &Artifact{Key: key, Data: rendered, Rendered: true}, nil
}

func (s *ArtifactService) render(ctx context.Context, kind artifactKind, data DocumentData) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		b, err := kind.render(s.renderer, ctx, data)
		done <- result{b, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("renderer did not finish: %w", ctx.Err())
	}
}

func (s *ArtifactService) persistRef(ctx context.Context, id uuid.UUID, kind artifactKind, key string) error {
	if _, err := s.requests.Update(ctx, id, repository.Condition{}, kind.patch(key)); err != nil {
		return fmt.Errorf("save %s reference: %w", kind.name, err)
	}
	return nil
}

// discard drops the stored object and the reference of an outdated artifact.
// Callers hold the id lock.
func (s *ArtifactService) discard(ctx context.Context, req *models.ODRequest, kind artifactKind) {
	logger := s.logger.WithFields(logrus.Fields{"request_id": req.ID, "artifact": kind.name})

	keys := []string{kind.key(req.ID)}
	if ref := kind.ref(req); ref != "" && ref != keys[0] {
		keys = append(keys, ref)
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			logger.WithField("key", key).WithError(err).Warn("Failed to delete outdated artifact")
		}
	}
	if err := s.persistRef(ctx, req.ID, kind, ""); err != nil {
		logger.WithError(err).Warn("Failed to clear outdated artifact reference")
	}
}

func (s *ArtifactService) load(ctx context.Context, id uuid.UUID) (*models.ODRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("OD request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load od request: %w", err)
	}
	return req, nil
}

func (s *ArtifactService) documentData(ctx context.Context, req *models.ODRequest) (DocumentData, error) {
	users, err := s.directory.Users(ctx, []uuid.UUID{req.StudentID, req.ClassAdvisor, req.HOD})
	if err != nil {
		return DocumentData{}, err
	}
	byID := make(map[uuid.UUID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	return DocumentData{
		Request:      req,
		Student:      byID[req.StudentID],
		ClassAdvisor: byID[req.ClassAdvisor],
		HOD:          byID[req.HOD],
		Institution:  s.institution,
		GeneratedAt:  s.clock.Now(),
	}, nil
}

// keyedMutex hands out one mutex per request id and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &keyedEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
