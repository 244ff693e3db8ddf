package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aria/internal/assistant/domain"
	"aria/internal/assistant/ports"
	"aria/internal/auth"
	ariaerrors "aria/internal/errors"
	"aria/internal/observability"
	"aria/internal/shared/jsonx"
	"aria/internal/shared/logging"
	id "aria/internal/utils/id"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxMessages = 40

// TurnInput is one user utterance addressed to a (user, session) pair.
// Prefetched, when the caller already holds a snapshot, skips the internal
// gather.
type TurnInput struct {
	UserID     string             `json:"userId"`
	SessionID  string             `json:"sessionId"`
	Utterance  string             `json:"utterance"`
	Prefetched *PrefetchedContext `json:"prefetchedContext,omitempty"`
}

// TurnOutput is everything a turn produced. Errors never escape the
// orchestrator: downstream failures surface here as a failed Result plus a
// spoken-style Reply describing the problem.
type TurnOutput struct {
	SessionID         string               `json:"sessionId"`
	Reply             string               `json:"reply"`
	Intent            *domain.Intent       `json:"intent,omitempty"`
	Result            *domain.ActionResult `json:"result,omitempty"`
	PendingAction     string               `json:"pendingAction,omitempty"`
	ShouldRefreshData bool                 `json:"shouldRefreshData"`
}

// Orchestrator runs the turn pipeline: load context, classify, gate,
// dispatch, reply, persist. Turns for the same session are serialized;
// different sessions proceed concurrently.
type Orchestrator struct {
	store      ports.ContextStore
	classifier *Classifier
	dispatcher *Dispatcher
	tokens     *auth.Manager
	llm        ports.LLMClient
	prefetcher *Prefetcher
	metrics    *observability.Metrics
	tracer     *observability.TracerProvider
	logger     logging.Logger

	maxMessages int
	tokenBudget int
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OrchestratorOption customizes orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithMaxMessages caps stored conversation length.
func WithMaxMessages(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 1 {
			o.maxMessages = n
		}
	}
}

// WithTokenBudget additionally caps stored conversations by counted tokens.
func WithTokenBudget(budget int) OrchestratorOption {
	return func(o *Orchestrator) {
		if budget > 0 {
			o.tokenBudget = budget
		}
	}
}

// WithPrefetcher enables context prefetch before classification.
func WithPrefetcher(p *Prefetcher) OrchestratorOption {
	return func(o *Orchestrator) { o.prefetcher = p }
}

// WithMetrics attaches the metrics collector.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer attaches the tracer provider.
func WithTracer(tp *observability.TracerProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = tp }
}

// WithOrchestratorNow injects a clock for tests.
func WithOrchestratorNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(store ports.ContextStore, classifier *Classifier, dispatcher *Dispatcher, tokens *auth.Manager, llm ports.LLMClient, logger logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		classifier:  classifier,
		dispatcher:  dispatcher,
		tokens:      tokens,
		llm:         llm,
		logger:      logging.OrNop(logger),
		maxMessages: defaultMaxMessages,
		now:         time.Now,
		locks:       map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn processes one utterance end to end. It never panics outward
// and never returns an error; the worst case is an apologetic reply with no
// side effects recorded.
func (o *Orchestrator) HandleTurn(ctx context.Context, input TurnInput) (output TurnOutput) {
	start := o.now()
	if input.SessionID == "" {
		input.SessionID = id.NewSessionID()
	}
	ctx = id.WithUserID(id.WithSessionID(ctx, input.SessionID), input.UserID)
	output.SessionID = input.SessionID

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("turn panicked for session %s: %v", input.SessionID, r)
			output = TurnOutput{
				SessionID: input.SessionID,
				Reply:     "Sorry, something went wrong on my end. Could you try that again?",
				Result: &domain.ActionResult{
					Succeeded: false,
					ErrorKind: string(ariaerrors.KindOrchestrator),
				},
			}
		}
		o.metrics.RecordTurn(ctx, o.now().Sub(start), output.Result != nil && output.Intent != nil)
	}()

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartSpan(ctx, observability.SpanTurn)
		defer span.End()
	}

	utterance := strings.TrimSpace(input.Utterance)
	if input.UserID == "" || utterance == "" {
		output.Reply = "I didn't catch that — what would you like me to do?"
		return output
	}

	unlock := o.lockSession(input.UserID, input.SessionID)
	defer unlock()

	conv, err := o.loadConversation(ctx, input.UserID, input.SessionID)
	if err != nil {
		o.logger.Error("load conversation %s/%s: %v", input.UserID, input.SessionID, err)
		conv = o.newConversation(input.UserID, input.SessionID)
	}
	conv.Append(domain.RoleUser, utterance)

	snapshot := input.Prefetched
	if snapshot == nil && o.prefetcher != nil {
		if snapshot, err = o.prefetcher.Gather(ctx, input.UserID); err != nil {
			o.logger.Debug("prefetch unavailable for %s: %v", input.UserID, err)
			snapshot = nil
		}
	}

	pendingBefore := clonePending(conv.Pending)

	classifyStart := o.now()
	cls := o.classifier.Classify(ctx, conv, o.userTimezone(ctx, input.UserID))
	o.metrics.RecordClassification(ctx, string(cls.Intent.Action), cls.Intent.Confidence, o.now().Sub(classifyStart))

	intent, directive := o.resolveIntent(conv, cls, utterance)
	if intent.Action != domain.ActionNone {
		output.Intent = &intent
	}

	var reply string
	switch {
	case directive != "":
		reply = directive
	case intent.Executable():
		reply = o.runGatedIntent(ctx, conv, input.UserID, intent, &output)
	default:
		// Conversational turn. Low-confidence actionable phrasing lands
		// here too; better to chat than to act on a guess.
		reply = o.conversationalReply(ctx, conv, cls.Reply, snapshot)
	}

	conv.Append(domain.RoleAssistant, reply)
	conv.Trim(o.maxMessages)
	if o.tokenBudget > 0 {
		conv.TrimToTokenBudget(o.tokenBudget)
	}
	if err := o.store.Put(ctx, conv); err != nil {
		o.logger.Error("persist conversation %s/%s: %v", input.UserID, input.SessionID, err)
	}

	if conv.Pending != nil {
		output.PendingAction = string(conv.Pending.Action)
	}
	if pendingBefore != nil && conv.Pending == nil && output.Result == nil {
		o.logger.Debug("pending %s abandoned in session %s", pendingBefore.Action, input.SessionID)
	}

	output.Reply = reply
	return output
}

// ClearSession drops stored context for the session. Clearing an absent
// session succeeds.
func (o *Orchestrator) ClearSession(ctx context.Context, userID, sessionID string) error {
	unlock := o.lockSession(userID, sessionID)
	defer unlock()
	return o.store.Clear(ctx, userID, sessionID)
}

// Conversation returns the stored conversation, if any.
func (o *Orchestrator) Conversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, bool, error) {
	return o.store.Get(ctx, userID, sessionID)
}

func (o *Orchestrator) lockSession(userID, sessionID string) func() {
	key := userID + "\x00" + sessionID
	o.mu.Lock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (o *Orchestrator) loadConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error) {
	conv, ok, err := o.store.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return o.newConversation(userID, sessionID), nil
	}
	return conv, nil
}

func (o *Orchestrator) newConversation(userID, sessionID string) *domain.Conversation {
	conv := domain.NewConversation(userID, sessionID)
	conv.Append(domain.RoleSystem, replyInstructions)
	return conv
}

func (o *Orchestrator) userTimezone(ctx context.Context, userID string) string {
	principal, err := o.tokens.Principal(ctx, userID)
	if err != nil {
		return ""
	}
	return principal.Timezone
}

// resolveIntent folds the classification into any pending task. The second
// return value, when non-empty, is a reply that short-circuits the rest of
// the turn (e.g. acknowledging an abandoned request).
func (o *Orchestrator) resolveIntent(conv *domain.Conversation, cls Classification, utterance string) (domain.Intent, string) {
	intent := cls.Intent
	pending := conv.Pending
	if pending == nil {
		return intent, ""
	}

	switch {
	case intent.Action == pending.Action:
		// Follow-up on the task in flight: newly extracted parameters
		// overlay the collected ones, and continuing an already-confident
		// task counts as confident.
		intent.Params = domain.MergeParams(pending.Params, intent.Params)
		if intent.Confidence <= domain.ExecutionFloor {
			intent.Confidence = 0.75
		}
		return intent, ""

	case intent.Action == domain.ActionNone:
		if isNegative(utterance) {
			conv.ClearPending()
			return domain.NoneIntent(), fmt.Sprintf("No problem, I've dropped the %s request.", humanAction(pending.Action))
		}
		if isAffirmative(utterance) && domain.Destructive(pending.Action) {
			params := domain.MergeParams(pending.Params, map[string]any{"confirmed": true})
			return domain.Intent{Action: pending.Action, Confidence: 0.75, Params: params}, ""
		}
		return intent, ""

	default:
		// The user pivoted to a different action; the old task stays parked
		// until it times out or they come back to it.
		return intent, ""
	}
}

// runGatedIntent takes an above-floor intent through the gate and, when
// ready, the dispatcher.
func (o *Orchestrator) runGatedIntent(ctx context.Context, conv *domain.Conversation, userID string, intent domain.Intent, output *TurnOutput) string {
	gate := EvaluateGate(intent)
	switch gate.Decision {
	case DecisionNeedInfo:
		conv.SetPending(intent.Action, intent.Params)
		return clarificationQuestion(intent.Action, gate.Missing)
	case DecisionNeedConfirmation:
		conv.SetPending(intent.Action, intent.Params)
		return confirmationQuestion(intent)
	}

	result := o.dispatcher.Execute(ctx, userID, intent)
	output.Result = &result
	output.ShouldRefreshData = result.ShouldRefreshData
	o.metrics.RecordDispatch(ctx, string(intent.Action), result.Succeeded, result.ErrorKind)
	if o.tracer != nil {
		_, span := o.tracer.StartSpan(ctx, observability.SpanDispatch,
			append(observability.ActionAttrs(string(intent.Action), intent.Confidence),
				attribute.Bool("succeeded", result.Succeeded))...)
		span.End()
	}

	if !result.Succeeded {
		// A failed dispatch keeps the pending task so the user can retry
		// after fixing what went wrong.
		if result.ErrorKind == "InvalidParameter" || result.ErrorKind == "EventNotFound" {
			conv.SetPending(intent.Action, intent.Params)
		}
		return failureReply(intent.Action, result)
	}

	conv.ClearPending()
	if result.ShouldRefreshData && o.prefetcher != nil {
		o.prefetcher.Invalidate(userID)
	}
	return o.successReply(ctx, conv, intent, result)
}

// conversationalReply answers non-actionable turns. The classifier's own
// text response is reused when it produced one; otherwise a second model
// call generates the reply, grounded in the prefetched snapshot.
func (o *Orchestrator) conversationalReply(ctx context.Context, conv *domain.Conversation, direct string, snapshot *PrefetchedContext) string {
	if direct != "" {
		return direct
	}

	system := replyInstructions
	if snapshot != nil {
		if encoded, err := jsonx.Marshal(snapshot); err == nil {
			system += "\n\nThe user's current calendar and inbox snapshot:\n" + string(encoded)
		}
	}

	messages := append([]domain.Message{{Role: domain.RoleSystem, Content: system}}, conv.Recent(8)...)
	resp, err := o.llm.Complete(ctx, ports.CompletionRequest{Messages: messages, Temperature: 0.6})
	if err != nil || resp.Content == "" {
		if err != nil {
			o.logger.Warn("reply generation failed: %v", err)
		}
		return "I'm here — I can manage your calendar or email whenever you're ready."
	}
	o.metrics.RecordLLMUsage(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Content
}

// successReply narrates a successful dispatch. The model phrases it from
// the structured payload; if that fails a plain templated line goes out
// instead, because a completed action must always be acknowledged.
func (o *Orchestrator) successReply(ctx context.Context, conv *domain.Conversation, intent domain.Intent, result domain.ActionResult) string {
	fallback := successFallback(intent)

	payload, err := jsonx.Marshal(result.Payload)
	if err != nil {
		return fallback
	}
	system := replyInstructions + fmt.Sprintf(
		"\n\nThe %s action just completed successfully. Tell the user, mentioning the key details from this result:\n%s",
		intent.Action, string(payload))

	messages := append([]domain.Message{{Role: domain.RoleSystem, Content: system}}, conv.Recent(6)...)
	resp, err := o.llm.Complete(ctx, ports.CompletionRequest{Messages: messages, Temperature: 0.5})
	if err != nil || resp.Content == "" {
		return fallback
	}
	o.metrics.RecordLLMUsage(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Content
}

func successFallback(intent domain.Intent) string {
	switch intent.Action {
	case domain.ActionScheduleEvent:
		return fmt.Sprintf("Done — %q is on your calendar.", intent.Param("title"))
	case domain.ActionSendEmail:
		return fmt.Sprintf("Your email to %s is on its way.", intent.Param("recipients"))
	case domain.ActionCancelEvent:
		return "Okay, that event is cancelled."
	case domain.ActionUpdateEvent:
		return "Done, I've updated the event."
	case domain.ActionCheckAvailability:
		return "I've checked your calendar for that day."
	case domain.ActionGetEvents:
		return "Here's what's on your calendar."
	case domain.ActionSearchEmail:
		return "Here's what I found in your inbox."
	default:
		return "All done."
	}
}

func failureReply(action domain.Action, result domain.ActionResult) string {
	switch result.ErrorKind {
	case string(ariaerrors.KindAuthFailure), string(ariaerrors.KindNoRefreshToken), string(ariaerrors.KindRefreshFailed):
		return "I couldn't access your account just now. You may need to reconnect it, then try again."
	case string(ariaerrors.KindRateLimited):
		return "The service is asking me to slow down. Give it a moment and try again."
	case string(ariaerrors.KindTimeout):
		return "That took too long to go through. Want me to try again?"
	case "EventNotFound":
		return "I couldn't find that event on your calendar. Could you tell me its exact name?"
	case "InvalidParameter":
		return "I didn't quite get the details right. Could you rephrase the date or time?"
	default:
		return fmt.Sprintf("I wasn't able to complete the %s request. Want me to try again?", humanAction(action))
	}
}

func humanAction(action domain.Action) string {
	return strings.ReplaceAll(string(action), "_", " ")
}

var affirmatives = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "confirmed", "do it", "go ahead", "please do"}

var negatives = []string{"no", "nope", "don't", "do not", "cancel that", "never mind", "nevermind", "forget it", "stop"}

func isAffirmative(utterance string) bool {
	return matchesShortPhrase(utterance, affirmatives)
}

func isNegative(utterance string) bool {
	return matchesShortPhrase(utterance, negatives)
}

// matchesShortPhrase guards against reading intent into long sentences;
// only terse replies count as bare confirmations or refusals.
func matchesShortPhrase(utterance string, phrases []string) bool {
	s := strings.ToLower(strings.TrimSpace(utterance))
	s = strings.Trim(s, ".!,?")
	if len(s) > 40 {
		return false
	}
	for _, phrase := range phrases {
		if s == phrase || strings.HasPrefix(s, phrase+" ") || strings.HasPrefix(s, phrase+",") {
			return true
		}
	}
	return false
}

func clonePending(p *domain.PendingTask) *domain.PendingTask {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
