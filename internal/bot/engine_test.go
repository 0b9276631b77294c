package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kltan/smartshopper/internal/clarify"
	"github.com/kltan/smartshopper/internal/domain"
	"github.com/kltan/smartshopper/internal/metrics"
	"github.com/kltan/smartshopper/internal/session"
	"github.com/kltan/smartshopper/internal/shared"
	"github.com/kltan/smartshopper/internal/store"
)

type fakeGuard struct {
	salutation bool
	offTopic   bool
}

func (f *fakeGuard) IsSalutation(ctx context.Context, message string) bool { return f.salutation }
func (f *fakeGuard) IsOffTopic(ctx context.Context, message string) bool   { return f.offTopic }

type fakeIntents struct {
	intent  domain.Intent
	emotion domain.Emotion
}

func (f *fakeIntents) Resolve(ctx context.Context, message string) domain.Intent {
	return f.intent
}

func (f *fakeIntents) DetectEmotion(ctx context.Context, message string) domain.Emotion {
	if f.emotion == "" {
		return domain.EmotionNeutral
	}
	return f.emotion
}

// fakeProfiles returns queued per-turn updates when scripted, and the fixed
// update otherwise.
type fakeProfiles struct {
	update domain.ProfileUpdate
	queue  []domain.ProfileUpdate
	err    error
}

func (f *fakeProfiles) Extract(ctx context.Context, message string, existing domain.Profile) (domain.ProfileUpdate, error) {
	if len(f.queue) > 0 {
		u := f.queue[0]
		f.queue = f.queue[1:]
		return u, nil
	}
	return f.update, f.err
}

// fakeSequencer plays a fixed question list with the same duplicate-skip
// contract as the real sequencer.
type fakeSequencer struct {
	questions []string
	err       error
}

func (f *fakeSequencer) NextUnasked(ctx context.Context, intent domain.Intent, subStatus domain.SubStatus, startStep int, asked clarify.AskedSet) (domain.Question, int, bool, error) {
	if f.err != nil {
		return domain.Question{}, startStep, false, f.err
	}
	for step := startStep; step < len(f.questions); step++ {
		text := f.questions[step]
		if asked != nil && asked.WasAsked(domain.NormalizeQuestion(text)) {
			continue
		}
		return domain.Question{Intent: intent, SubStatus: subStatus, Sequence: step + 1, Text: text}, step + 1, true, nil
	}
	return domain.Question{}, startStep, false, nil
}

type fakeRecommender struct {
	offer       domain.Offer
	reply       string
	lastProfile domain.Profile
}

func (f *fakeRecommender) Recommend(ctx context.Context, intent domain.Intent, p domain.Profile) (domain.Offer, string) {
	f.lastProfile = p
	return f.offer, f.reply
}

type fakeSummarizer struct {
	summary string
	err     error
	answers []string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, p domain.Profile, answers []string, finalReply string) (string, error) {
	f.answers = answers
	return f.summary, f.err
}

// recordingRepo is an in-memory store.Repository for asserting audit writes.
type recordingRepo struct {
	interactions []store.Interaction
	handoffs     []store.Handoff
	truncated    []string
}

func (r *recordingRepo) LogInteraction(ctx context.Context, rec store.Interaction) error {
	r.interactions = append(r.interactions, rec)
	return nil
}

func (r *recordingRepo) TruncateLog(ctx context.Context, sessionID string) error {
	r.truncated = append(r.truncated, sessionID)
	return nil
}

func (r *recordingRepo) Interactions(ctx context.Context, sessionID string) ([]store.Interaction, error) {
	return r.interactions, nil
}

func (r *recordingRepo) SaveHandoff(ctx context.Context, rec store.Handoff) error {
	r.handoffs = append(r.handoffs, rec)
	return nil
}

func (r *recordingRepo) GetHandoff(ctx context.Context, sessionID string) (*store.Handoff, error) {
	if len(r.handoffs) == 0 {
		return nil, nil
	}
	return &r.handoffs[len(r.handoffs)-1], nil
}

func (r *recordingRepo) Ping(ctx context.Context) error { return nil }
func (r *recordingRepo) Close() error                   { return nil }

type deps struct {
	guard     *fakeGuard
	intents   *fakeIntents
	profiles  *fakeProfiles
	sequencer *fakeSequencer
	recommend *fakeRecommender
	summaries *fakeSummarizer
	sessions  *session.MemoryStore
	repo      *recordingRepo
}

func newTestEngine(t *testing.T) (*Engine, *deps) {
	t.Helper()
	d := &deps{
		guard:    &fakeGuard{},
		intents:  &fakeIntents{intent: domain.IntentUnknown},
		profiles: &fakeProfiles{},
		sequencer: &fakeSequencer{questions: []string{
			"How many rooms does your home have?",
			"What is your postal code?",
		}},
		recommend: &fakeRecommender{
			offer: domain.Offer{OfferID: "1", PlanName: "Fibre 2Gbps"},
			reply: "We recommend the Fibre 2Gbps.",
		},
		summaries: &fakeSummarizer{summary: "Customer wants fibre."},
		sessions:  session.NewMemoryStore(),
		repo:      &recordingRepo{},
	}
	e := NewEngine(d.guard, d.intents, d.profiles, d.sequencer, d.recommend, d.summaries, d.sessions, d.repo)
	return e, d
}

func strptr(s string) *string { return &s }

func TestGreetingDoesNotMutateState(t *testing.T) {
	e, d := newTestEngine(t)
	d.guard.salutation = true

	reply := e.HandleTurn(context.Background(), "s1", "hi", nil)
	if reply.Content != greetingReply {
		t.Errorf("reply = %q, want greeting", reply.Content)
	}

	s := d.sessions.GetOrCreate("s1")
	if s.PrimaryIntent != domain.IntentUnset || s.SubStatus != domain.SubStatusUnset || s.Step != 0 {
		t.Errorf("greeting mutated state: %+v", s)
	}
}

func TestUnknownIntentAsksPlanType(t *testing.T) {
	e, _ := newTestEngine(t)

	reply := e.HandleTurn(context.Background(), "s1", "I need something", nil)
	if reply.Content != planTypeReply {
		t.Errorf("reply = %q, want plan-type prompt", reply.Content)
	}
}

func TestOffTopicMessageIsRedirected(t *testing.T) {
	e, d := newTestEngine(t)
	d.guard.offTopic = true

	reply := e.HandleTurn(context.Background(), "s1", "what's the weather like", nil)
	if reply.Content != offTopicReply {
		t.Errorf("reply = %q, want off-topic redirect", reply.Content)
	}
}

func TestIntentWithoutSubStatusAsksProviderThenSubStatus(t *testing.T) {
	e, d := newTestEngine(t)
	d.intents.intent = domain.IntentFibre

	reply := e.HandleTurn(context.Background(), "s1", "I want fibre", nil)
	if !strings.Contains(reply.Content, providerReply) {
		t.Errorf("reply = %q, want provider prompt", reply.Content)
	}

	d.profiles.update = domain.ProfileUpdate{CurrentProvider: strptr("other")}
	reply = e.HandleTurn(context.Background(), "s1", "I'm with Starhub", nil)
	if reply.Content != subStatusReply {
		t.Errorf("reply = %q, want sub-status prompt", reply.Content)
	}
}

func TestExtractedSubStatusGoesStraightToClarification(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("mobile"),
		RelationshipStatus: strptr("new_line"),
	}

	reply := e.HandleTurn(context.Background(), "s1", "new mobile line please", nil)
	if !strings.Contains(reply.Content, "How many rooms does your home have?") {
		t.Errorf("reply = %q, want first clarification question", reply.Content)
	}

	s := d.sessions.GetOrCreate("s1")
	if s.PrimaryIntent != domain.IntentMobile || s.SubStatus != domain.SubStatusNewLine {
		t.Errorf("state = intent %q substatus %q", s.PrimaryIntent, s.SubStatus)
	}
	if s.Step != 1 {
		t.Errorf("Step = %d, want 1 after the first question", s.Step)
	}
	if !s.WasAsked(domain.NormalizeQuestion("How many rooms does your home have?")) {
		t.Error("issued question not recorded in asked set")
	}
}

func TestFirstIntentTurnCarriesTonePrefix(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}
	d.intents.emotion = domain.EmotionFrustration

	reply := e.HandleTurn(context.Background(), "s1", "my internet is awful, new fibre line", nil)
	if !strings.HasPrefix(reply.Content, "Sorry to hear that!") {
		t.Errorf("reply = %q, want frustration acknowledgement prefix", reply.Content)
	}

	// Subsequent turns are plain questions.
	reply = e.HandleTurn(context.Background(), "s1", "4-room", nil)
	if strings.HasPrefix(reply.Content, "Sorry to hear that!") {
		t.Errorf("tone prefix repeated after intent settled: %q", reply.Content)
	}
}

func TestHistoryQuestionsAreNotRepeated(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}

	history := domain.Transcript{
		{Role: domain.RoleAssistant, Content: "How many rooms does your home have?"},
		{Role: domain.RoleUser, Content: "4-room"},
	}
	reply := e.HandleTurn(context.Background(), "s1", "4-room", history)
	if !strings.Contains(reply.Content, "What is your postal code?") {
		t.Errorf("reply = %q, want second question after history seeded first", reply.Content)
	}
}

func TestExhaustedQuestionsRecommendAndReset(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}

	history := domain.Transcript{}
	msgs := []string{"fibre new line", "4-room", "600123"}
	var reply domain.Turn
	for _, msg := range msgs {
		reply = e.HandleTurn(context.Background(), "s1", msg, history)
		history = append(history, domain.Turn{Role: domain.RoleUser, Content: msg}, reply)
	}

	if reply.Content != "We recommend the Fibre 2Gbps." {
		t.Errorf("final reply = %q, want recommendation", reply.Content)
	}

	s := d.sessions.GetOrCreate("s1")
	if s.PrimaryIntent != domain.IntentUnset || s.SubStatus != domain.SubStatusUnset || s.Step != 0 || s.Turns != 0 {
		t.Errorf("session not reset after recommendation: %+v", s)
	}
	if s.Profile != (domain.Profile{}) {
		t.Errorf("profile not cleared after recommendation: %+v", s.Profile)
	}

	if len(d.repo.handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(d.repo.handoffs))
	}
	h := d.repo.handoffs[0]
	if h.FinalRecommendation != "We recommend the Fibre 2Gbps." {
		t.Errorf("handoff recommendation = %q", h.FinalRecommendation)
	}
	if h.Summary != "Customer wants fibre." {
		t.Errorf("handoff summary = %q", h.Summary)
	}
	if len(h.Answers) != 2 {
		t.Errorf("handoff answers = %v, want the two clarification answers", h.Answers)
	}
}

func TestClarificationAnswersFeedOfferMatching(t *testing.T) {
	e, d := newTestEngine(t)
	// The core fields arrive on the first message; home size and postal
	// prefix only exist in the clarification answers that follow.
	d.profiles.queue = []domain.ProfileUpdate{
		{
			PlanType:           strptr("fibre"),
			CurrentProvider:    strptr("singtel"),
			RelationshipStatus: strptr("new_line"),
		},
		{HomeSize: strptr("4-room")},
		{PostalCodePrefix: strptr("60")},
	}

	history := domain.Transcript{}
	msgs := []string{"new fibre line with singtel", "4-room", "600123"}
	var reply domain.Turn
	for _, msg := range msgs {
		reply = e.HandleTurn(context.Background(), "s1", msg, history)
		history = append(history, domain.Turn{Role: domain.RoleUser, Content: msg}, reply)
	}

	if reply.Content != "We recommend the Fibre 2Gbps." {
		t.Fatalf("final reply = %q, want recommendation", reply.Content)
	}
	got := d.recommend.lastProfile
	if got.HomeSize != "4-room" {
		t.Errorf("HomeSize = %q, clarification answer did not reach the matcher", got.HomeSize)
	}
	if got.PostalCodePrefix != "60" {
		t.Errorf("PostalCodePrefix = %q, clarification answer did not reach the matcher", got.PostalCodePrefix)
	}
	if got.PlanType != "fibre" || got.CurrentProvider != "singtel" || got.RelationshipStatus != "new_line" {
		t.Errorf("core fields lost along the way: %+v", got)
	}
}

func TestSummarizerFailureStillWritesHandoff(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}
	d.sequencer.questions = nil
	d.summaries.err = errors.New("llm down")

	reply := e.HandleTurn(context.Background(), "s1", "fibre new line", nil)
	if reply.Content != "We recommend the Fibre 2Gbps." {
		t.Errorf("reply = %q, want recommendation despite summary failure", reply.Content)
	}
	if len(d.repo.handoffs) != 1 {
		t.Fatalf("handoffs = %d, want record without narrative", len(d.repo.handoffs))
	}
	if d.repo.handoffs[0].Summary != "" {
		t.Errorf("summary = %q, want empty", d.repo.handoffs[0].Summary)
	}
}

func TestMalformedExtractionApologizes(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.err = shared.ErrMalformed

	reply := e.HandleTurn(context.Background(), "s1", "fibre please", nil)
	if reply.Content != apologyReply {
		t.Errorf("reply = %q, want apology", reply.Content)
	}
}

func TestExtractionOutageDegradesToIntentResolution(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.err = errors.New("llm down")
	d.intents.intent = domain.IntentFibre

	reply := e.HandleTurn(context.Background(), "s1", "fibre please", nil)
	if !strings.Contains(reply.Content, providerReply) {
		t.Errorf("reply = %q, want the conversation to continue past the outage", reply.Content)
	}
}

func TestSequencerFailureApologizes(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}
	d.sequencer.err = errors.New("opensearch down")

	reply := e.HandleTurn(context.Background(), "s1", "fibre new line", nil)
	if reply.Content != apologyReply {
		t.Errorf("reply = %q, want apology", reply.Content)
	}
}

func TestSequencerFailureKindLabels(t *testing.T) {
	e, d := newTestEngine(t)
	d.profiles.update = domain.ProfileUpdate{
		PlanType:           strptr("fibre"),
		RelationshipStatus: strptr("new_line"),
	}

	malformed := metrics.CollaboratorErrorsTotal.WithLabelValues("search", "malformed")
	unavailable := metrics.CollaboratorErrorsTotal.WithLabelValues("search", "unavailable")
	malformedBefore := testutil.ToFloat64(malformed)
	unavailableBefore := testutil.ToFloat64(unavailable)

	d.sequencer.err = fmt.Errorf("parsing question document: %w", shared.ErrMalformed)
	e.HandleTurn(context.Background(), "s1", "fibre new line", nil)
	if got := testutil.ToFloat64(malformed) - malformedBefore; got != 1 {
		t.Errorf("malformed counter delta = %v, want 1", got)
	}

	d.sequencer.err = errors.New("opensearch down")
	e.HandleTurn(context.Background(), "s1", "still broken", nil)
	if got := testutil.ToFloat64(unavailable) - unavailableBefore; got != 1 {
		t.Errorf("unavailable counter delta = %v, want 1", got)
	}
}

func TestFirstTurnTruncatesAuditLog(t *testing.T) {
	e, d := newTestEngine(t)

	e.HandleTurn(context.Background(), "s1", "hello there", nil)
	e.HandleTurn(context.Background(), "s1", "still here", nil)

	if len(d.repo.truncated) != 1 {
		t.Errorf("truncations = %d, want exactly one per conversation", len(d.repo.truncated))
	}
	if len(d.repo.interactions) != 2 {
		t.Errorf("interactions = %d, want one per turn", len(d.repo.interactions))
	}
}

func TestEveryTurnIsAudited(t *testing.T) {
	e, d := newTestEngine(t)
	d.guard.salutation = true

	e.HandleTurn(context.Background(), "s1", "hi", nil)
	if len(d.repo.interactions) != 1 {
		t.Fatalf("interactions = %d, want 1", len(d.repo.interactions))
	}
	rec := d.repo.interactions[0]
	if rec.SessionID != "s1" || rec.UserInput != "hi" || rec.AssistantReply != greetingReply {
		t.Errorf("interaction = %+v", rec)
	}
}
