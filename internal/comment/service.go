package comment

import (
	"collab-engine/internal/errors"
	"collab-engine/internal/event"
	"context"
	defError "errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// documentResourceType matches how sessions reference documents
const documentResourceType = "document"

// SessionSource is the slice of the session store this service needs
type SessionSource interface {
	ActiveSessionIDsForResource(ctx context.Context, organizationID, resourceID uint64, resourceType string) ([]uint64, error)
	ResourceForSession(ctx context.Context, sessionID uint64) (uint64, string, error)
	HasActiveRole(ctx context.Context, sessionID, userID uint64, roles ...string) (bool, error)
	TouchActivity(ctx context.Context, sessionID, userID uint64, counterColumn string) error
}

// Recorder is the slice of the event log this service needs
type Recorder interface {
	FanOut(ctx context.Context, sessionIDs []uint64, rec event.Record)
}

type CreateInput struct {
	DocumentID     uint64
	AuthorID       uint64
	OrganizationID uint64
	Content        string
	Position       *Position
	ParentID       *uint64
}

type UpdateInput struct {
	Content  *string
	Resolved *bool
}

type ListInput struct {
	DocumentID uint64
	SessionID  uint64
	Resolved   *bool
	SortDesc   bool
}

type Service interface {
	CreateComment(ctx context.Context, input CreateInput) (*Comment, error)
	ListThreads(ctx context.Context, input ListInput, page, pageSize int) ([]Comment, ThreadsMeta, error)
	UpdateComment(ctx context.Context, commentID uint64, input UpdateInput, requestingUserID, organizationID uint64) (*Comment, error)
	DeleteComment(ctx context.Context, commentID, requestingUserID, organizationID uint64) error
	AddReaction(ctx context.Context, commentID, userID uint64, emoji string) (*Comment, error)
	RemoveReaction(ctx context.Context, commentID, userID uint64, emoji string) (*Comment, error)
}

type DefaultService struct {
	repository Repository
	sessions   SessionSource
	recorder   Recorder
	log        zerolog.Logger
}

func NewService(repository Repository, sessions SessionSource, recorder Recorder, log zerolog.Logger) Service {
	return &DefaultService{
		repository: repository,
		sessions:   sessions,
		recorder:   recorder,
		log:        log,
	}
}

func (s *DefaultService) CreateComment(ctx context.Context, input CreateInput) (*Comment, error) {
	if input.Content == "" {
		return nil, errors.BadRequest("Comment content is required", nil)
	}

	if input.ParentID != nil {
		parent, err := s.repository.FindByID(ctx, *input.ParentID)
		if err != nil {
			if defError.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.NotFound("Parent comment not found", err)
			}
			return nil, err
		}
		if parent.DocumentID != input.DocumentID {
			return nil, errors.NotFound("Parent comment belongs to a different document", nil)
		}
	}

	comment := &Comment{
		DocumentID: input.DocumentID,
		AuthorID:   input.AuthorID,
		Content:    input.Content,
		Position:   input.Position,
		ParentID:   input.ParentID,
		Reactions:  Reactions{},
	}
	if err := s.repository.Create(ctx, comment); err != nil {
		return nil, err
	}

	eventType := event.TypeCommentAdd
	if input.ParentID != nil {
		eventType = event.TypeCommentReply
	}
	s.notifySessions(ctx, comment.DocumentID, input.AuthorID, input.OrganizationID, event.Record{
		Type:       eventType,
		ActorID:    input.AuthorID,
		DocumentID: &comment.DocumentID,
		Payload:    event.Payload{"comment_id": comment.ID},
	}, "comment_count")

	return comment, nil
}

func (s *DefaultService) ListThreads(ctx context.Context, input ListInput, page, pageSize int) ([]Comment, ThreadsMeta, error) {
	documentID := input.DocumentID
	if documentID == 0 {
		if input.SessionID == 0 {
			return nil, ThreadsMeta{}, errors.BadRequest("Either document_id or session_id is required", nil)
		}
		resourceID, resourceType, err := s.sessions.ResourceForSession(ctx, input.SessionID)
		if err != nil {
			if defError.Is(err, gorm.ErrRecordNotFound) {
				return nil, ThreadsMeta{}, errors.NotFound("Session not found", err)
			}
			return nil, ThreadsMeta{}, err
		}
		if resourceType != documentResourceType {
			return nil, ThreadsMeta{}, errors.BadRequest("Session is not bound to a document", nil)
		}
		documentID = resourceID
	}

	roots, meta, err := s.repository.ListRoots(ctx, ThreadFilter{
		DocumentID: documentID,
		Resolved:   input.Resolved,
		SortDesc:   input.SortDesc,
	}, page, pageSize)
	if err != nil {
		return nil, ThreadsMeta{}, err
	}

	rootIDs := make([]uint64, 0, len(roots))
	for _, root := range roots {
		rootIDs = append(rootIDs, root.ID)
	}
	replies, err := s.repository.ListReplies(ctx, rootIDs)
	if err != nil {
		return nil, ThreadsMeta{}, err
	}

	byParent := map[uint64][]Comment{}
	for _, reply := range replies {
		byParent[*reply.ParentID] = append(byParent[*reply.ParentID], reply)
	}
	for i := range roots {
		roots[i].Replies = byParent[roots[i].ID]
	}

	return roots, meta, nil
}

func (s *DefaultService) UpdateComment(ctx context.Context, commentID uint64, input UpdateInput, requestingUserID, organizationID uint64) (*Comment, error) {
	comment, err := s.repository.FindByID(ctx, commentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Comment not found", err)
		}
		return nil, err
	}

	resolvedChanged := false

	// Content belongs to its author; resolution is collaborative triage and
	// open to any active participant on the document.
	if input.Content != nil {
		if comment.AuthorID != requestingUserID {
			return nil, errors.Forbidden("Only the author can edit a comment", nil)
		}
		comment.Content = *input.Content
	}
	if input.Resolved != nil && *input.Resolved != comment.Resolved {
		if comment.AuthorID != requestingUserID {
			participant, err := s.isActiveParticipant(ctx, comment.DocumentID, requestingUserID, organizationID)
			if err != nil {
				return nil, err
			}
			if !participant {
				return nil, errors.Forbidden("Only session participants can resolve comments", nil)
			}
		}
		comment.Resolved = *input.Resolved
		resolvedChanged = true
	}

	if err := s.repository.Save(ctx, comment); err != nil {
		return nil, err
	}

	eventType := event.TypeCommentUpdate
	payload := event.Payload{"comment_id": comment.ID}
	if resolvedChanged {
		eventType = event.TypeCommentResolve
		payload["resolved"] = comment.Resolved
	}
	s.notifySessions(ctx, comment.DocumentID, requestingUserID, organizationID, event.Record{
		Type:       eventType,
		ActorID:    requestingUserID,
		DocumentID: &comment.DocumentID,
		Payload:    payload,
	}, "")

	return comment, nil
}

func (s *DefaultService) DeleteComment(ctx context.Context, commentID, requestingUserID, organizationID uint64) error {
	comment, err := s.repository.FindByID(ctx, commentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Comment not found", err)
		}
		return err
	}
	if comment.AuthorID != requestingUserID {
		return errors.Forbidden("Only the author can delete a comment", nil)
	}

	replyCount, err := s.repository.CountReplies(ctx, commentID)
	if err != nil {
		return err
	}

	if replyCount > 0 {
		// keep the row so the thread's replies stay anchored
		comment.Content = Tombstone
		if err := s.repository.Save(ctx, comment); err != nil {
			return err
		}
	} else {
		if err := s.repository.Delete(ctx, commentID); err != nil {
			return err
		}
	}

	s.notifySessions(ctx, comment.DocumentID, requestingUserID, organizationID, event.Record{
		Type:       event.TypeCommentDelete,
		ActorID:    requestingUserID,
		DocumentID: &comment.DocumentID,
		Payload: event.Payload{
			"comment_id":  commentID,
			"had_replies": replyCount > 0,
		},
	}, "")

	return nil
}

func (s *DefaultService) AddReaction(ctx context.Context, commentID, userID uint64, emoji string) (*Comment, error) {
	if emoji == "" {
		return nil, errors.BadRequest("Emoji is required", nil)
	}

	comment, err := s.repository.FindByID(ctx, commentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Comment not found", err)
		}
		return nil, err
	}

	if comment.Reactions == nil {
		comment.Reactions = Reactions{}
	}
	if !comment.Reactions.Add(emoji, userID) {
		// already reacted; nothing to write
		return comment, nil
	}

	if err := s.repository.Save(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *DefaultService) RemoveReaction(ctx context.Context, commentID, userID uint64, emoji string) (*Comment, error) {
	comment, err := s.repository.FindByID(ctx, commentID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Comment not found", err)
		}
		return nil, err
	}

	if !comment.Reactions.Remove(emoji, userID) {
		return comment, nil
	}

	if err := s.repository.Save(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// isActiveParticipant reports whether the user is active in any of the
// organization's live sessions on the document
func (s *DefaultService) isActiveParticipant(ctx context.Context, documentID, userID, organizationID uint64) (bool, error) {
	sessionIDs, err := s.sessions.ActiveSessionIDsForResource(ctx, organizationID, documentID, documentResourceType)
	if err != nil {
		return false, err
	}
	for _, sessionID := range sessionIDs {
		ok, err := s.sessions.HasActiveRole(ctx, sessionID, userID, "owner", "admin", "member", "viewer")
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *DefaultService) notifySessions(ctx context.Context, documentID, actorID, organizationID uint64, rec event.Record, counterColumn string) {
	sessionIDs, err := s.sessions.ActiveSessionIDsForResource(ctx, organizationID, documentID, documentResourceType)
	if err != nil {
		s.log.Warn().Err(err).Uint64("document_id", documentID).Msg("active session lookup failed, skipping fan-out")
		return
	}

	s.recorder.FanOut(ctx, sessionIDs, rec)

	if counterColumn == "" {
		return
	}
	for _, sessionID := range sessionIDs {
		if err := s.sessions.TouchActivity(ctx, sessionID, actorID, counterColumn); err != nil {
			s.log.Warn().Err(err).Uint64("session_id", sessionID).Msg("participant activity refresh failed")
		}
	}
}
