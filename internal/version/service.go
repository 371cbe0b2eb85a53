package version

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/event"
	"collab-engine/internal/worker"
	"context"
	defError "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ResourceType is how documents are referenced in session resource bindings
const ResourceType = "document"

// SessionSource is the slice of the session store this service needs:
// which sessions are live on a document, and who holds which role in them.
type SessionSource interface {
	ActiveSessionIDsForResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) ([]uint64, error)
	HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error)
	TouchActivity(ctx context.Context, sessionID, userID uint64, counterColumn string) error
}

// Recorder is the slice of the event log this service needs
type Recorder interface {
	FanOut(ctx context.Context, sessionIDs []uint64, rec event.Record)
}

// Pool runs background housekeeping tasks
type Pool interface {
	Submit(t worker.Task)
}

type CreateVersionInput struct {
	DocumentID     uint64
	Content        string
	Changes        []ContentChange
	Title          string
	Summary        string
	ChangeType     string
	AuthorID       uint64
	OrganizationID uint64
	AutoSave       bool
}

type Diff struct {
	VersionA *DocumentVersion `json:"version_a"`
	VersionB *DocumentVersion `json:"version_b"`
}

type Service interface {
	CreateDocument(ctx context.Context, title, content string, ownerID uint64) (*Document, error)
	GetDocument(ctx context.Context, documentID uint64) (*Document, error)
	CreateVersion(ctx context.Context, input CreateVersionInput) (*DocumentVersion, error)
	RestoreVersion(ctx context.Context, versionID, requestingUserID, organizationID uint64, createBackup bool) (*DocumentVersion, error)
	DeleteVersion(ctx context.Context, versionID, requestingUserID, organizationID uint64) error
	CleanupAutoSaveVersions(ctx context.Context, documentID uint64, keepCount int) (int64, error)
	GetVersionDiff(ctx context.Context, versionIDA, versionIDB uint64) (*Diff, error)
	GetDocumentHistory(ctx context.Context, documentID uint64, f HistoryFilter, page, pageSize int) ([]DocumentVersion, HistoryMeta, error)
}

type DefaultService struct {
	repository Repository
	sessions   SessionSource
	recorder   Recorder
	pool       Pool
	keepCount  int
	log        zerolog.Logger
}

func NewService(
	repository Repository,
	sessions SessionSource,
	recorder Recorder,
	pool Pool,
	keepCount int,
	log zerolog.Logger,
) Service {
	if keepCount <= 0 {
		keepCount = 5
	}
	return &DefaultService{
		repository: repository,
		sessions:   sessions,
		recorder:   recorder,
		pool:       pool,
		keepCount:  keepCount,
		log:        log,
	}
}

func (s *DefaultService) CreateDocument(ctx context.Context, title, content string, ownerID uint64) (*Document, error) {
	if title == "" {
		return nil, errors.BadRequest("Title cannot be empty", nil)
	}

	doc := &Document{
		Title:   title,
		Content: content,
		OwnerID: ownerID,
	}
	if err := s.repository.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DefaultService) GetDocument(ctx context.Context, documentID uint64) (*Document, error) {
	doc, err := s.repository.FindDocumentByID(ctx, documentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}
	return doc, nil
}

func (s *DefaultService) CreateVersion(ctx context.Context, input CreateVersionInput) (*DocumentVersion, error) {
	if input.ChangeType == "" {
		input.ChangeType = ChangeTypeEdit
	}
	switch input.ChangeType {
	case ChangeTypeEdit, ChangeTypeBackup, ChangeTypeRestore:
	default:
		return nil, errors.BadRequest("Unknown change type", nil)
	}

	doc, err := s.repository.FindDocumentByID(ctx, input.DocumentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Document not found", err)
		}
		return nil, err
	}

	max, err := s.repository.MaxVersion(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	added, removed := countLines(input.Changes)
	v := &DocumentVersion{
		DocumentID:   doc.ID,
		Version:      max + 1,
		Title:        input.Title,
		Summary:      input.Summary,
		Content:      input.Content,
		ChangeType:   input.ChangeType,
		LinesAdded:   added,
		LinesRemoved: removed,
		AuthorID:     input.AuthorID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repository.ApplyCreate(ctx, v); err != nil {
		return nil, err
	}

	s.notifySessions(ctx, doc.ID, input.AuthorID, input.OrganizationID, event.Record{
		Type:       event.TypeDocumentChange,
		ActorID:    input.AuthorID,
		DocumentID: &doc.ID,
		DocVersion: &v.Version,
		Payload: event.Payload{
			"change_type":   v.ChangeType,
			"lines_added":   v.LinesAdded,
			"lines_removed": v.LinesRemoved,
		},
	}, "edit_count")

	// Manual saves trigger retention pruning of piled-up autosaves
	if !input.AutoSave {
		docID := doc.ID
		s.pool.Submit(func(taskCtx context.Context) error {
			_, err := s.CleanupAutoSaveVersions(taskCtx, docID, s.keepCount)
			return err
		})
	}

	return v, nil
}

func (s *DefaultService) RestoreVersion(ctx context.Context, versionID, requestingUserID, organizationID uint64, createBackup bool) (*DocumentVersion, error) {
	target, err := s.repository.FindVersionByID(ctx, versionID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}

	doc, err := s.repository.FindDocumentByID(ctx, target.DocumentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := doc.CurrentVersion + 1

	var backup *DocumentVersion
	if createBackup {
		// preserve the state this restore is about to overwrite
		backup = &DocumentVersion{
			DocumentID: doc.ID,
			Version:    next,
			Title:      fmt.Sprintf("Backup before restoring v%d", target.Version),
			Content:    doc.Content,
			ChangeType: ChangeTypeBackup,
			AuthorID:   requestingUserID,
			CreatedAt:  now,
		}
		next++
	}

	restore := &DocumentVersion{
		DocumentID: doc.ID,
		Version:    next,
		Title:      fmt.Sprintf("Restored from v%d", target.Version),
		Content:    target.Content,
		ChangeType: ChangeTypeRestore,
		AuthorID:   requestingUserID,
		CreatedAt:  now,
	}

	if err := s.repository.ApplyRestore(ctx, doc.ID, backup, restore, restore.Version, restore.Content); err != nil {
		return nil, err
	}

	s.notifySessions(ctx, doc.ID, requestingUserID, organizationID, event.Record{
		Type:       event.TypeVersionRestore,
		ActorID:    requestingUserID,
		DocumentID: &doc.ID,
		DocVersion: &restore.Version,
		Payload: event.Payload{
			"restored_from": target.Version,
			"backup_taken":  createBackup,
		},
	}, "edit_count")

	return restore, nil
}

func (s *DefaultService) DeleteVersion(ctx context.Context, versionID, requestingUserID, organizationID uint64) error {
	v, err := s.repository.FindVersionByID(ctx, versionID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Version not found", err)
		}
		return err
	}

	doc, err := s.repository.FindDocumentByID(ctx, v.DocumentID)
	if err != nil {
		return err
	}
	if v.Version == doc.CurrentVersion {
		return errors.UnprocessableEntity("Can't delete the current version", nil)
	}

	allowed, err := s.holdsDocumentRole(ctx, doc.ID, requestingUserID, organizationID, "owner", "admin")
	if err != nil {
		return err
	}
	if !allowed {
		return errors.Forbidden("Only a session owner or admin can delete versions", nil)
	}

	deleted, err := s.repository.DeleteVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return errors.NotFound("Version not found", nil)
	}
	return nil
}

func (s *DefaultService) CleanupAutoSaveVersions(ctx context.Context, documentID uint64, keepCount int) (int64, error) {
	if keepCount <= 0 {
		keepCount = s.keepCount
	}
	return s.repository.DeleteEditVersionsBeyond(ctx, documentID, keepCount)
}

func (s *DefaultService) GetVersionDiff(ctx context.Context, versionIDA, versionIDB uint64) (*Diff, error) {
	a, err := s.repository.FindVersionByID(ctx, versionIDA)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}
	b, err := s.repository.FindVersionByID(ctx, versionIDB)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}

	// raw contents only; line-level diffing is a caller concern
	return &Diff{VersionA: a, VersionB: b}, nil
}

func (s *DefaultService) GetDocumentHistory(ctx context.Context, documentID uint64, f HistoryFilter, page, pageSize int) ([]DocumentVersion, HistoryMeta, error) {
	if _, err := s.repository.FindDocumentByID(ctx, documentID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, HistoryMeta{}, errors.NotFound("Document not found", err)
		}
		return nil, HistoryMeta{}, err
	}
	return s.repository.ListHistory(ctx, documentID, f, page, pageSize)
}

// notifySessions fans the record out to every session live on the document
// and refreshes the actor's participant activity in each.
func (s *DefaultService) notifySessions(ctx context.Context, documentID, actorID, organizationID uint64, rec event.Record, counterColumn string) {
	sessionIDs, err := s.sessions.ActiveSessionIDsForResource(ctx, organizationID, documentID, ResourceType)
	if err != nil {
		s.log.Warn().Err(err).Uint64("document_id", documentID).Msg("active session lookup failed, skipping fan-out")
		return
	}

	s.recorder.FanOut(ctx, sessionIDs, rec)

	for _, sessionID := range sessionIDs {
		if err := s.sessions.TouchActivity(ctx, sessionID, actorID, counterColumn); err != nil {
			s.log.Warn().Err(err).Uint64("session_id", sessionID).Msg("participant activity refresh failed")
		}
	}
}

func (s *DefaultService) holdsDocumentRole(ctx context.Context, documentID, userID, organizationID uint64, roles ...string) (bool, error) {
	sessionIDs, err := s.sessions.ActiveSessionIDsForResource(ctx, organizationID, documentID, ResourceType)
	if err != nil {
		return false, err
	}
	for _, sessionID := range sessionIDs {
		ok, err := s.sessions.HasActiveRole(ctx, sessionID, userID, roles...)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
