// Package chat manages grounded conversation sessions: lifecycle, per-session
// rate limiting, retrieval-augmented prompt assembly and generation with
// graceful degradation.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/session"
	"github.com/vitae-cloud/profilex/internal/usecase/retrieval"
)

// Config holds session and generation settings.
type Config struct {
	HistoryLimit      int
	MessagesPerWindow int
	Window            time.Duration
	SessionTTL        time.Duration
	IdleTimeout       time.Duration
	MaxContextChunks  int
	GenerationTimeout time.Duration
}

// SourceRef is one provenance entry backing an answer.
type SourceRef struct {
	Source    string
	FetchedAt time.Time
}

// Answer is the result of one handled message.
type Answer struct {
	SessionID string
	Text      string
	Sources   []SourceRef
	Degraded  bool
}

// Service runs chat sessions.
type Service struct {
	sessions SessionStore
	profiles ProfileReader
	retrieve Retriever
	generate Generator
	cfg      Config
	locks    sessionLocks
	messages *prometheus.CounterVec
	logger   *zap.Logger
}

// New creates the chat service.
// messages is a counter vec with label "result" ("ok"/"degraded"/"rejected"),
// passed explicitly.
func New(
	sessions SessionStore,
	profiles ProfileReader,
	retrieve Retriever,
	generate Generator,
	cfg Config,
	messages *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxContextChunks <= 0 {
		cfg.MaxContextChunks = 6
	}
	return &Service{
		sessions: sessions,
		profiles: profiles,
		retrieve: retrieve,
		generate: generate,
		cfg:      cfg,
		messages: messages,
		logger:   logger,
	}
}

// Open starts a session pinned to the subject's currently published profile
// version. Re-indexing after this point does not affect the session.
func (s *Service) Open(ctx context.Context, subjectID, visitor string) (session.Session, error) {
	version, err := s.profiles.CurrentVersion(ctx, subjectID)
	if err != nil {
		return session.Session{}, err
	}

	sess, err := session.New(uuid.NewString(), subjectID, visitor, version, s.cfg.SessionTTL)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return session.Session{}, err
	}

	s.logger.Info("session opened",
		zap.String("session_id", sess.ID()),
		zap.String("subject_id", subjectID),
		zap.Int("profile_version", version))
	return sess, nil
}

// HandleMessage admits, grounds and answers one visitor message. Admission
// (state machine and rate window) runs before any retrieval or generation:
// a rejected message costs no model tokens.
//
// Generation failure degrades instead of erroring: the visitor message is
// still recorded and a fallback answer returned.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (Answer, error) {
	mu := s.locks.lock(sessionID)
	defer mu.Unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Answer{}, err
	}

	now := time.Now().UTC()
	if err := sess.Admit(now, s.cfg.MessagesPerWindow, s.cfg.Window, s.cfg.IdleTimeout); err != nil {
		s.countMessage("rejected")
		// Expiry discovered during admission is persisted so later calls
		// fail the same way without re-evaluating timeouts.
		if errors.Is(err, domain.ErrSessionExpired) {
			if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
				s.logger.Warn("persisting expired session failed",
					zap.String("session_id", sessionID), zap.Error(saveErr))
			}
		}
		return Answer{}, err
	}

	sess.Append(session.Turn{Role: session.RoleUser, Text: text, At: now}, s.cfg.HistoryLimit)

	p, err := s.profiles.Get(ctx, sess.SubjectID(), sess.ProfileVersion())
	if err != nil {
		return Answer{}, err
	}

	chunks, err := s.retrieve.Search(ctx, sess.SubjectID(), sess.ProfileVersion(), text, s.cfg.MaxContextChunks, "")
	if err != nil {
		if errors.Is(err, domain.ErrIndexVersionMismatch) {
			// Hard error: the pinned index cannot serve this model's vectors.
			if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
				s.logger.Warn("saving session failed", zap.String("session_id", sessionID), zap.Error(saveErr))
			}
			return Answer{}, err
		}
		s.logger.Warn("retrieval failed, degrading",
			zap.String("session_id", sessionID), zap.Error(err))
		return s.degrade(ctx, sess)
	}

	genCtx := ctx
	if s.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
	}

	answerText, err := s.generate.Generate(genCtx, buildSystemPrompt(&p, chunks), sess.History())
	if err != nil {
		s.logger.Warn("generation failed, degrading",
			zap.String("session_id", sessionID), zap.Error(err))
		return s.degrade(ctx, sess)
	}

	sess.Append(session.Turn{Role: session.RoleAssistant, Text: answerText, At: time.Now().UTC()}, s.cfg.HistoryLimit)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Answer{}, err
	}

	s.countMessage("ok")
	return Answer{
		SessionID: sess.ID(),
		Text:      answerText,
		Sources:   sourceRefs(chunks),
	}, nil
}

// Close terminates a session. Closing is terminal and idempotent.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	mu := s.locks.lock(sessionID)
	defer mu.Unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	sess.Close()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}
	s.locks.forget(sessionID)

	s.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// degrade records the visitor message and returns the fallback answer.
func (s *Service) degrade(ctx context.Context, sess session.Session) (Answer, error) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Answer{}, err
	}
	s.countMessage("degraded")
	return Answer{SessionID: sess.ID(), Text: degradedAnswer, Degraded: true}, nil
}

func (s *Service) countMessage(result string) {
	if s.messages != nil {
		s.messages.WithLabelValues(result).Inc()
	}
}

// sourceRefs deduplicates the attributions behind the answer's chunks.
func sourceRefs(chunks []retrieval.RankedChunk) []SourceRef {
	seen := make(map[string]bool)
	var refs []SourceRef
	for _, rc := range chunks {
		for _, a := range rc.Chunk.Attributions() {
			key := string(a.Source) + "/" + a.FetchedAt.Format("2006-01")
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, SourceRef{Source: string(a.Source), FetchedAt: a.FetchedAt})
		}
	}
	return refs
}
