// Package orchestrator runs one customer message through every pipeline
// stage and always produces a reply, degrading through fallback tiers when
// collaborators fail or the turn runs out of time.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"retail-chat-workers/internal/chat/genai"
	"retail-chat-workers/internal/chat/intent"
	"retail-chat-workers/internal/chat/safety"
	"retail-chat-workers/internal/chat/scoring"
	"retail-chat-workers/internal/chat/search"
	"retail-chat-workers/internal/chat/session"
	apperrors "retail-chat-workers/internal/common/errors"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/metrics"
	"retail-chat-workers/internal/common/observability"
	"retail-chat-workers/internal/common/validation"
	"retail-chat-workers/internal/models"
)

var ErrEmptyReply = errors.New("generated reply is empty")

// Stage names the pipeline step a turn has reached.
type Stage string

const (
	StageReceived         Stage = "received"
	StageSafetyChecked    Stage = "safety_checked"
	StageRateChecked      Stage = "rate_checked"
	StageContextLoaded    Stage = "context_loaded"
	StageIntentClassified Stage = "intent_classified"
	StageSearched         Stage = "searched"
	StageScored           Stage = "scored"
	StageReplyComposed    Stage = "reply_composed"
	StageContextSaved     Stage = "context_saved"
	StageDone             Stage = "done"
)

// ==========================
// Collaborators
// ==========================

type InputValidator interface {
	Validate(obj interface{}) *validation.ValidationResult
}

type SafetyChecker interface {
	Check(text string) safety.Result
}

type Admitter interface {
	Allow(userID string) bool
}

type ContextStore interface {
	Get(ctx context.Context, userID string) session.Lookup
	AppendTurn(ctx context.Context, userID string, turn models.Turn) session.SaveResult
}

type Classifier interface {
	Classify(ctx context.Context, text string, conv *models.ConversationContext) models.IntentResult
}

type Searcher interface {
	Search(ctx context.Context, query string, filter *models.SearchFilter, maxResults int) (search.Result, error)
}

type Recommender interface {
	Score(hits []models.ProductHit, e models.Entities) []models.Recommendation
	Recommend(ctx context.Context, hits []models.ProductHit, e models.Entities) scoring.Outcome
}

// CatalogScanner serves the timeout path without touching the network.
type CatalogScanner interface {
	Scan(query string, filter *models.SearchFilter, limit int) []models.ProductHit
}

// Deps are the service objects a pipeline is built from. Generator,
// Catalog, Validator, Audit and Obs may be nil.
type Deps struct {
	Validator InputValidator
	Safety    SafetyChecker
	Limiter   Admitter
	Store     ContextStore
	Extractor Classifier
	Search    Searcher
	Scorer    Recommender
	Generator genai.Client
	Catalog   CatalogScanner
	Audit     logger.Logger
	Obs       *observability.Observability
}

type Config struct {
	TurnTimeout        time.Duration
	MaxMessageLength   int
	MaxRecommendations int
	SearchMaxResults   int
	HistoryTurns       int
	ReplyMaxRunes      int
	Temperature        float32
	MaxTokens          int
}

type Orchestrator struct {
	deps   Deps
	config Config
	logger logger.Logger
}

func New(deps Deps, cfg Config, log logger.Logger) (*Orchestrator, error) {
	switch {
	case deps.Safety == nil:
		return nil, errors.New("orchestrator: safety filter is required")
	case deps.Limiter == nil:
		return nil, errors.New("orchestrator: rate limiter is required")
	case deps.Store == nil:
		return nil, errors.New("orchestrator: context store is required")
	case deps.Extractor == nil:
		return nil, errors.New("orchestrator: intent extractor is required")
	case deps.Search == nil:
		return nil, errors.New("orchestrator: search gateway is required")
	case deps.Scorer == nil:
		return nil, errors.New("orchestrator: scorer is required")
	}
	if deps.Audit == nil {
		deps.Audit = log
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 3 * time.Second
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = 3
	}
	if cfg.SearchMaxResults <= 0 {
		cfg.SearchMaxResults = 10
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	if cfg.ReplyMaxRunes <= 0 {
		cfg.ReplyMaxRunes = 1200
	}
	return &Orchestrator{
		deps:   deps,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}, nil
}

// HandleTurn runs one message through the pipeline. The returned reply is
// never empty and the call returns within the turn timeout plus the time
// needed to persist context.
func (o *Orchestrator) HandleTurn(ctx context.Context, msg models.InboundMessage) (res models.PipelineResult) {
	start := time.Now()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = start.UTC()
	}
	turnID := uuid.NewString()
	log := o.logger.WithFields(map[string]interface{}{"turnId": turnID, "userId": msg.UserID})

	defer func() {
		res.TurnID = turnID
		res.DurationMs = time.Since(start).Milliseconds()
		if res.Recommendations == nil {
			res.Recommendations = []models.Recommendation{}
		}
		metrics.ChatTurns.WithLabelValues(res.ServiceUsed).Inc()
		metrics.ChatTurnDuration.Observe(time.Since(start).Seconds())
		o.deps.Obs.RecordTurn(ctx, res.ServiceUsed, res.Success, time.Since(start))
	}()

	lang := intent.DetectLanguage(msg.Text)
	if lang == "" {
		lang = intent.LangEnglish
	}

	// RECEIVED
	if err := o.validate(msg); err != nil {
		log.Info("message rejected", map[string]interface{}{"error": err.Error()})
		return terminal(models.ServiceInvalidInput, canned(lang, replyInvalid), lang)
	}

	// SAFETY_CHECKED
	_, span := o.deps.Obs.StartSpan(ctx, "chat."+string(StageSafetyChecked))
	verdict := o.deps.Safety.Check(msg.Text)
	observability.EndSpan(span, nil)
	if !verdict.IsSafe {
		metrics.SafetyBlocks.WithLabelValues(string(verdict.RiskLevel)).Inc()
		o.audit(turnID, msg, verdict)
		return terminal(models.ServiceBlocked, canned(lang, replyRefusal), lang)
	}

	// RATE_CHECKED
	if !o.deps.Limiter.Allow(msg.UserID) {
		metrics.RateLimitRejections.Inc()
		log.Info("message throttled", nil)
		return terminal(models.ServiceRateLimited, canned(lang, replyThrottled), lang)
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.config.TurnTimeout)
	defer cancel()

	st := &turnState{lang: lang, stage: StageRateChecked}
	done := make(chan models.PipelineResult, 1)
	go func() {
		done <- o.run(turnCtx, msg, st, log)
	}()

	select {
	case r := <-done:
		return r
	case <-turnCtx.Done():
		if !st.claim() {
			// the pipeline already owns the turn and is persisting it
			return <-done
		}
		return o.timeoutFallback(ctx, msg, st, log)
	}
}

func (o *Orchestrator) validate(msg models.InboundMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return apperrors.NewInvalidInputError("message text is empty")
	}
	if n := utf8.RuneCountInString(msg.Text); n > o.config.MaxMessageLength {
		return apperrors.NewInvalidInputError("message text is too long").WithMetadata("length", n)
	}
	if o.deps.Validator != nil {
		if vr := o.deps.Validator.Validate(msg); !vr.Valid {
			return apperrors.NewInvalidInputError(vr.Error())
		}
	}
	return nil
}

func (o *Orchestrator) audit(turnID string, msg models.InboundMessage, verdict safety.Result) {
	sum := sha256.Sum256([]byte(msg.Text))
	o.deps.Audit.Warn("safety violation", map[string]interface{}{
		"turnId":      turnID,
		"userId":      msg.UserID,
		"platform":    msg.Platform,
		"riskLevel":   string(verdict.RiskLevel),
		"issues":      verdict.Issues,
		"textHash":    hex.EncodeToString(sum[:8]),
		"textPreview": truncateRunes(msg.Text, 40),
	})
}

// run executes CONTEXT_LOADED through CONTEXT_SAVED.
func (o *Orchestrator) run(ctx context.Context, msg models.InboundMessage, st *turnState, log logger.Logger) models.PipelineResult {
	// CONTEXT_LOADED
	stageCtx, end := o.stage(ctx, st, StageContextLoaded)
	lookup := o.deps.Store.Get(stageCtx, msg.UserID)
	end(nil)
	conv := lookup.Context
	if lookup.Degraded {
		st.degrade(models.DegradedContextMemory)
	}
	if conv != nil && intent.DetectLanguage(msg.Text) == "" && conv.Language != "" {
		st.setLang(conv.Language)
	}

	// INTENT_CLASSIFIED
	stageCtx, end = o.stage(ctx, st, StageIntentClassified)
	ir := o.deps.Extractor.Classify(stageCtx, msg.Text, conv)
	end(nil)
	if ir.Source == models.SourceKeyword {
		st.degrade(models.DegradedIntentKeyword)
	}
	if ir.Language != "" {
		st.setLang(ir.Language)
	}
	effective := EffectiveEntities(ir.Entities, conv)
	st.setIntent(ir, effective)

	// SEARCHED, SCORED
	var recs []models.Recommendation
	if ir.RequiresProductSearch {
		st.setSearched()
		stageCtx, end = o.stage(ctx, st, StageSearched)
		result, err := o.deps.Search.Search(stageCtx, BuildQuery(effective, msg.Text), BuildFilter(effective), o.config.SearchMaxResults)
		end(err)
		if err != nil {
			log.Error("search rejected arguments", map[string]interface{}{"error": err.Error()})
		}
		if result.Degraded() {
			st.degrade(models.DegradedSearchCatalog)
		}

		stageCtx, end = o.stage(ctx, st, StageScored)
		outcome := o.deps.Scorer.Recommend(stageCtx, result.Hits, effective)
		end(nil)
		if outcome.SearchDegraded {
			st.degrade(models.DegradedSearchCatalog)
		}
		recs = outcome.Recommendations
		if len(recs) > o.config.MaxRecommendations {
			recs = recs[:o.config.MaxRecommendations]
		}
		st.setRecommendations(recs)
	} else {
		// no hits to rank, no alternative queries
		_, end = o.stage(ctx, st, StageScored)
		recs = o.deps.Scorer.Score(nil, effective)
		end(nil)
	}

	// REPLY_COMPOSED
	lang := st.language()
	stageCtx, end = o.stage(ctx, st, StageReplyComposed)
	reply, genErr := o.generate(stageCtx, msg, ir, recs, conv, lang)
	end(genErr)

	res := models.PipelineResult{
		Success:         genErr == nil,
		Intent:          ir.Label,
		Confidence:      ir.Confidence,
		Language:        lang,
		Recommendations: recs,
		ServiceUsed:     models.ServiceGenAI,
	}
	if genErr != nil {
		log.Warn("reply generation failed, using template", map[string]interface{}{"error": genErr.Error()})
		metrics.ChatFallbacks.WithLabelValues("reply").Inc()
		st.degrade(models.DegradedReplyTemplate)
		reply = templatedReply(lang, ir.Label, msg.FormatHint, recs, st.wasSearched())
		res.ServiceUsed = models.ServiceFallback
	}
	res.ReplyText = reply

	if !st.claim() {
		return res
	}

	// CONTEXT_SAVED
	res.ContextUpdated = o.saveTurn(context.WithoutCancel(ctx), msg, ir, reply, lang, st)
	res.Degraded = st.degradedList()
	st.setStage(StageDone)
	log.Info("turn completed", map[string]interface{}{
		"intent":      res.Intent,
		"serviceUsed": res.ServiceUsed,
		"recommended": len(res.Recommendations),
		"degraded":    res.Degraded,
	})
	return res
}

func (o *Orchestrator) generate(ctx context.Context, msg models.InboundMessage, ir models.IntentResult, recs []models.Recommendation, conv *models.ConversationContext, lang string) (string, error) {
	if o.deps.Generator == nil {
		return "", apperrors.NewLLMSynthesisFailedError(errors.New("no generator configured"))
	}
	text, err := o.deps.Generator.Generate(ctx, genai.Request{
		System:      replySystem(lang),
		Prompt:      replyPrompt(msg, ir, recs, conv, o.config.HistoryTurns),
		Temperature: o.config.Temperature,
		MaxTokens:   o.config.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, genai.ErrLLMTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewLLMTimeoutError(o.config.TurnTimeout)
		}
		return "", apperrors.NewLLMSynthesisFailedError(err)
	}
	reply := sanitizeReply(text, o.config.ReplyMaxRunes)
	if reply == "" {
		return "", apperrors.NewLLMSynthesisFailedError(ErrEmptyReply)
	}
	return reply, nil
}

// saveTurn is best-effort; it reports whether the turn was stored anywhere.
func (o *Orchestrator) saveTurn(ctx context.Context, msg models.InboundMessage, ir models.IntentResult, reply, lang string, st *turnState) bool {
	stageCtx, end := o.stage(ctx, st, StageContextSaved)
	saved := o.deps.Store.AppendTurn(stageCtx, msg.UserID, models.Turn{
		UserMessage: msg.Text,
		Reply:       reply,
		Intent:      ir.Label,
		Entities:    ir.Entities,
		Language:    lang,
		Timestamp:   msg.ReceivedAt,
	})
	end(nil)
	if saved.Degraded {
		st.degrade(models.DegradedContextMemory)
	}
	if !saved.Saved {
		st.degrade(models.DegradedContextSave)
	}
	return saved.Saved
}

// timeoutFallback answers from whatever the abandoned pipeline produced,
// then from a catalog scan, then with an apology.
func (o *Orchestrator) timeoutFallback(ctx context.Context, msg models.InboundMessage, st *turnState, log logger.Logger) models.PipelineResult {
	snap := st.snapshot()
	stageErr := apperrors.NewTurnTimeoutError(o.config.TurnTimeout, string(snap.stage))
	log.Warn("turn timed out, using fallback reply", map[string]interface{}{
		"error": stageErr.Error(),
		"stage": string(snap.stage),
	})
	metrics.ChatFallbacks.WithLabelValues("turn").Inc()
	st.degrade(models.DegradedTurnTimeout)
	st.degrade(models.DegradedReplyTemplate)

	recs := snap.recs
	searched := snap.searched
	if len(recs) == 0 && o.deps.Catalog != nil && (snap.ir == nil || snap.ir.RequiresProductSearch) {
		entities := snap.entities
		if snap.ir == nil {
			entities = intent.ExtractEntities(msg.Text)
		}
		hits := o.deps.Catalog.Scan(BuildQuery(entities, msg.Text), nil, o.config.SearchMaxResults)
		recs = o.deps.Scorer.Score(hits, entities)
		if len(recs) > o.config.MaxRecommendations {
			recs = recs[:o.config.MaxRecommendations]
		}
		searched = searched || len(hits) > 0
	}

	res := models.PipelineResult{
		Success:         false,
		Language:        snap.lang,
		Recommendations: recs,
		ServiceUsed:     models.ServiceFallback,
		Intent:          models.IntentGeneralInquiry,
	}
	if snap.ir != nil {
		res.Intent = snap.ir.Label
		res.Confidence = snap.ir.Confidence
	}
	res.ReplyText = templatedReply(snap.lang, res.Intent, msg.FormatHint, recs, searched)

	ir := models.IntentResult{Label: res.Intent}
	if snap.ir != nil {
		ir = *snap.ir
	}
	res.ContextUpdated = o.saveTurn(context.WithoutCancel(ctx), msg, ir, res.ReplyText, snap.lang, st)
	res.Degraded = st.degradedList()
	return res
}

func (o *Orchestrator) stage(ctx context.Context, st *turnState, s Stage) (context.Context, func(error)) {
	st.setStage(s)
	start := time.Now()
	ctx, span := o.deps.Obs.StartSpan(ctx, "chat."+string(s), attribute.String("stage", string(s)))
	return ctx, func(err error) {
		metrics.ChatStageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
		observability.EndSpan(span, err)
	}
}

func terminal(service, reply, lang string) models.PipelineResult {
	return models.PipelineResult{
		ReplyText:   reply,
		Success:     false,
		Language:    lang,
		ServiceUsed: service,
	}
}

// ==========================
// Per-turn state
// ==========================

// turnState is shared between the pipeline goroutine and the timeout path.
type turnState struct {
	mu        sync.Mutex
	lang      string
	stage     Stage
	ir        *models.IntentResult
	entities  models.Entities
	recs      []models.Recommendation
	searched  bool
	degraded  []string
	finalized atomic.Bool
}

type stateSnapshot struct {
	lang     string
	stage    Stage
	ir       *models.IntentResult
	entities models.Entities
	recs     []models.Recommendation
	searched bool
}

// claim hands the turn's result and context save to exactly one path.
func (s *turnState) claim() bool {
	return s.finalized.CompareAndSwap(false, true)
}

func (s *turnState) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

func (s *turnState) setLang(lang string) {
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

func (s *turnState) language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

func (s *turnState) setIntent(ir models.IntentResult, effective models.Entities) {
	s.mu.Lock()
	s.ir = &ir
	s.entities = effective
	s.mu.Unlock()
}

func (s *turnState) setSearched() {
	s.mu.Lock()
	s.searched = true
	s.mu.Unlock()
}

func (s *turnState) wasSearched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searched
}

func (s *turnState) setRecommendations(recs []models.Recommendation) {
	s.mu.Lock()
	s.recs = append([]models.Recommendation(nil), recs...)
	s.mu.Unlock()
}

func (s *turnState) degrade(marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.degraded {
		if d == marker {
			return
		}
	}
	s.degraded = append(s.degraded, marker)
}

func (s *turnState) degradedList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.degraded...)
}

func (s *turnState) snapshot() stateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := stateSnapshot{
		lang:     s.lang,
		stage:    s.stage,
		entities: s.entities,
		recs:     append([]models.Recommendation(nil), s.recs...),
		searched: s.searched,
	}
	if s.ir != nil {
		ir := *s.ir
		snap.ir = &ir
	}
	return snap
}
