package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/msto63/krishisaathi/internal/backend"
	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/voice"
)

// fakeRouter records calls and optionally blocks until released
type fakeRouter struct {
	mu     sync.Mutex
	calls  []routeCall
	result backend.Result
	err    error
	gate   chan struct{}
	panics bool
}

type routeCall struct {
	message  string
	language string
	userID   string
}

func (r *fakeRouter) Route(ctx context.Context, message, languageID, userID string) (backend.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, routeCall{message, languageID, userID})
	gate, res, err := r.gate, r.result, r.err
	r.mu.Unlock()

	if r.panics {
		panic("router exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.Result{}, ctx.Err()
		}
	}
	return res, err
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRouter) lastCall() routeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// fakeCapture returns whatever is sent on results
type fakeCapture struct {
	mu      sync.Mutex
	calls   int
	locales []string
	results chan captureResult
}

type captureResult struct {
	text string
	err  error
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{results: make(chan captureResult, 1)}
}

func (f *fakeCapture) Listen(ctx context.Context, localeTag string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.locales = append(f.locales, localeTag)
	f.mu.Unlock()

	select {
	case r := <-f.results:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSynth records utterances; Speak blocks while hold is set
type fakeSynth struct {
	mu         sync.Mutex
	voices     []voice.Candidate
	utterances []Utterance
	hold       bool
	cancelled  chan struct{}
}

func newFakeSynth(voices ...voice.Candidate) *fakeSynth {
	return &fakeSynth{voices: voices, cancelled: make(chan struct{}, 1)}
}

func (f *fakeSynth) Voices(ctx context.Context) ([]voice.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]voice.Candidate(nil), f.voices...), nil
}

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.utterances = append(f.utterances, u)
	hold := f.hold
	f.mu.Unlock()

	if !hold {
		return nil
	}
	<-ctx.Done()
	f.cancelled <- struct{}{}
	return ctx.Err()
}

func (f *fakeSynth) spoken() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.utterances...)
}

type fixture struct {
	ctrl    *Controller
	router  *fakeRouter
	capture *fakeCapture
	synth   *fakeSynth
	store   *history.Store
}

func newFixture(t *testing.T, router *fakeRouter, synth *fakeSynth, opts Options) *fixture {
	t.Helper()
	store := history.Open(context.Background(), history.NewMemoryPersister(), history.Options{ConversationID: "test"})
	capture := newFakeCapture()

	deps := Deps{
		Catalog: language.Builtin(),
		History: store,
		Router:  router,
		Capture: capture,
	}
	if synth != nil {
		deps.Synthesis = synth
	}
	if opts.UserID == "" {
		opts.UserID = "farmer-1"
	}

	ctrl, err := New(deps, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })

	return &fixture{ctrl: ctrl, router: router, capture: capture, synth: synth, store: store}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) waitIdleWith(t *testing.T, messages int) {
	t.Helper()
	waitFor(t, "idle session", func() bool {
		return f.ctrl.State() == StateIdle && len(f.ctrl.Messages()) == messages
	})
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("New() without deps expected error")
	}

	store := history.Open(context.Background(), nil, history.Options{})
	_, err := New(Deps{Catalog: language.Builtin(), History: store, Router: &fakeRouter{}}, Options{Language: "latin"})
	if !errors.Is(err, language.ErrUnknownLanguage) {
		t.Errorf("New() error = %v, want ErrUnknownLanguage", err)
	}
}

func TestSubmitText_TypedTurn(t *testing.T) {
	router := &fakeRouter{
		result: backend.Result{DisplayText: "Add compost.", SpokenText: "Add compost."},
		gate:   make(chan struct{}),
	}
	synth := newFakeSynth(voice.Candidate{VoiceID: "us", LocaleTag: "en-US"}, voice.Candidate{VoiceID: "in", LocaleTag: "en-IN"})
	f := newFixture(t, router, synth, Options{})

	if err := f.ctrl.SubmitText("  How to fix sandy soil?  "); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}

	// The user message is recorded before the backend answers
	msgs := f.ctrl.Messages()
	if len(msgs) != 2 || msgs[1].Sender != history.SenderUser || msgs[1].Text != "How to fix sandy soil?" {
		t.Fatalf("Messages() = %+v", msgs)
	}
	if got := f.ctrl.State(); got != StateRouting {
		t.Errorf("State() = %v, want routing", got)
	}

	close(router.gate)
	f.waitIdleWith(t, 3)

	reply := f.ctrl.Messages()[2]
	if reply.Sender != history.SenderAssistant || reply.Text != "Add compost." {
		t.Errorf("reply = %+v", reply)
	}
	if call := router.lastCall(); call.language != "english" || call.userID != "farmer-1" {
		t.Errorf("route call = %+v", call)
	}
	spoken := synth.spoken()
	if len(spoken) != 1 || spoken[0].VoiceID != "in" || spoken[0].Text != "Add compost." {
		t.Errorf("utterances = %+v", spoken)
	}
	if spoken[0].Rate != 0.8 {
		t.Errorf("Rate = %v, want 0.8", spoken[0].Rate)
	}
}

func TestSubmitText_Guards(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{})}
	f := newFixture(t, router, nil, Options{})

	if err := f.ctrl.SubmitText("   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("SubmitText(blank) error = %v, want ErrEmptyText", err)
	}
	if err := f.ctrl.SubmitText("first"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	if err := f.ctrl.SubmitText("second"); !errors.Is(err, ErrBusy) {
		t.Errorf("SubmitText() while routing error = %v, want ErrBusy", err)
	}
	if f.ctrl.StartCapture() {
		t.Error("StartCapture() while routing = true, want false")
	}
	if f.capture.callCount() != 0 {
		t.Errorf("capture calls = %d, want 0", f.capture.callCount())
	}
	close(router.gate)
}

func TestCapture_Turn(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "गोबर खाद डालें।", SpokenText: "गोबर खाद डालें।", OriginalText: "Apply manure.", Translated: true}}
	synth := newFakeSynth(voice.Candidate{VoiceID: "lekha", LocaleTag: "hi-IN"})
	f := newFixture(t, router, synth, Options{Language: "hindi"})

	if !f.ctrl.StartCapture() {
		t.Fatal("StartCapture() = false, want true")
	}
	if got := f.ctrl.State(); got != StateListening {
		t.Fatalf("State() = %v, want listening", got)
	}
	if f.ctrl.StartCapture() {
		t.Error("second StartCapture() = true, want false")
	}

	f.capture.results <- captureResult{text: "खाद कौन सी?"}
	f.waitIdleWith(t, 3)

	msgs := f.ctrl.Messages()
	if msgs[1].Text != "खाद कौन सी?" || msgs[1].SourceLanguage != "hindi" {
		t.Errorf("user message = %+v", msgs[1])
	}
	if msgs[2].OriginalText != "Apply manure." {
		t.Errorf("assistant OriginalText = %q", msgs[2].OriginalText)
	}
	if f.capture.locales[0] != "hi-IN" {
		t.Errorf("capture locale = %q, want hi-IN", f.capture.locales[0])
	}
	if call := f.router.lastCall(); call.language != "hindi" {
		t.Errorf("route language = %q, want hindi", call.language)
	}
	if spoken := synth.spoken(); len(spoken) != 1 || spoken[0].VoiceID != "lekha" {
		t.Errorf("utterances = %+v", spoken)
	}
}

func TestCapture_EmptyTranscript(t *testing.T) {
	router := &fakeRouter{}
	f := newFixture(t, router, nil, Options{})

	if !f.ctrl.StartCapture() {
		t.Fatal("StartCapture() = false")
	}
	f.capture.results <- captureResult{text: "  \n"}

	waitFor(t, "idle", func() bool { return f.ctrl.State() == StateIdle })
	if n := len(f.ctrl.Messages()); n != 1 {
		t.Errorf("Messages() len = %d, want 1", n)
	}
	if router.callCount() != 0 {
		t.Errorf("router calls = %d, want 0", router.callCount())
	}
}

func TestCapture_Error(t *testing.T) {
	router := &fakeRouter{}
	f := newFixture(t, router, nil, Options{})

	var mu sync.Mutex
	var notices []string
	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventNotice {
			mu.Lock()
			notices = append(notices, ev.Notice)
			mu.Unlock()
		}
	})

	f.ctrl.StartCapture()
	f.capture.results <- captureResult{err: errors.New("microphone unplugged")}

	waitFor(t, "notice and idle", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) == 1 && f.ctrl.State() == StateIdle
	})
	if n := len(f.ctrl.Messages()); n != 1 {
		t.Errorf("Messages() len = %d, want 1", n)
	}
	if router.callCount() != 0 {
		t.Errorf("router calls = %d, want 0", router.callCount())
	}
}

func TestRoute_NetworkError(t *testing.T) {
	router := &fakeRouter{err: &backend.NetworkError{Op: "POST /chat", Err: errors.New("connection refused")}}
	synth := newFakeSynth(voice.Candidate{VoiceID: "v1", LocaleTag: "en-US"})
	f := newFixture(t, router, synth, Options{SpeakErrors: true})

	if err := f.ctrl.SubmitText("hello"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	f.waitIdleWith(t, 3)

	msgs := f.ctrl.Messages()
	if msgs[2].Sender != history.SenderAssistant || msgs[2].Text != backend.ConnectivityMessage {
		t.Errorf("apology = %+v", msgs[2])
	}
	if n := len(synth.spoken()); n != 0 {
		t.Errorf("utterances = %d, want 0", n)
	}
}

func TestRoute_BackendError(t *testing.T) {
	tests := []struct {
		name        string
		speakErrors bool
		wantSpoken  int
	}{
		{"shown only", false, 0},
		{"shown and spoken", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{err: &backend.BackendError{Status: 500, Detail: "Translation failed"}}
			synth := newFakeSynth(voice.Candidate{VoiceID: "v1", LocaleTag: "ta-IN"})
			f := newFixture(t, router, synth, Options{Language: "tamil", SpeakErrors: tt.speakErrors})

			f.ctrl.SubmitText("வணக்கம்")
			f.waitIdleWith(t, 3)

			if got := f.ctrl.Messages()[2].Text; got != "Translation failed" {
				t.Errorf("reply = %q, want Translation failed", got)
			}
			if n := len(synth.spoken()); n != tt.wantSpoken {
				t.Errorf("utterances = %d, want %d", n, tt.wantSpoken)
			}
		})
	}
}

func TestRoute_PanicIsContained(t *testing.T) {
	f := newFixture(t, &fakeRouter{panics: true}, nil, Options{})

	f.ctrl.SubmitText("hello")
	f.waitIdleWith(t, 3)
	if got := f.ctrl.Messages()[2].Text; got != backend.ConnectivityMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestNoVoiceAvailable_TextOnly(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "ok", SpokenText: "ok"}}
	synth := newFakeSynth()
	f := newFixture(t, router, synth, Options{})

	f.ctrl.SubmitText("hello")
	f.waitIdleWith(t, 3)
	if n := len(synth.spoken()); n != 0 {
		t.Errorf("utterances = %d, want 0", n)
	}
}

func TestStop_WhileSpeaking(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "long answer", SpokenText: "long answer"}}
	synth := newFakeSynth(voice.Candidate{VoiceID: "v1", LocaleTag: "en-IN"})
	synth.hold = true
	f := newFixture(t, router, synth, Options{})

	if f.ctrl.Stop() {
		t.Error("Stop() while idle = true, want false")
	}

	f.ctrl.SubmitText("tell me everything")
	waitFor(t, "speaking", func() bool { return f.ctrl.State() == StateSpeaking })

	if !f.ctrl.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	if got := f.ctrl.State(); got != StateIdle {
		t.Errorf("State() after Stop() = %v, want idle", got)
	}
	select {
	case <-synth.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis was not cancelled")
	}

	// The late completion of the cancelled utterance must not disturb the next turn
	if err := f.ctrl.SubmitText("next"); err != nil {
		t.Errorf("SubmitText() after Stop() error = %v", err)
	}
}

func TestStop_WhileListening(t *testing.T) {
	router := &fakeRouter{}
	f := newFixture(t, router, nil, Options{})

	f.ctrl.StartCapture()
	if !f.ctrl.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	if f.ctrl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", f.ctrl.State())
	}

	// A result arriving after the stop is ignored
	f.capture.results <- captureResult{text: "too late"}
	time.Sleep(50 * time.Millisecond)
	if router.callCount() != 0 || len(f.ctrl.Messages()) != 1 {
		t.Errorf("stale capture was processed: calls=%d messages=%d", router.callCount(), len(f.ctrl.Messages()))
	}
}

func TestChangeLanguage(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{})}
	f := newFixture(t, router, nil, Options{})

	var mu sync.Mutex
	var changes []string
	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventLanguageChanged {
			mu.Lock()
			changes = append(changes, ev.Language)
			mu.Unlock()
		}
	})

	if err := f.ctrl.ChangeLanguage("klingon"); !errors.Is(err, language.ErrUnknownLanguage) {
		t.Errorf("ChangeLanguage(klingon) error = %v, want ErrUnknownLanguage", err)
	}
	if err := f.ctrl.ChangeLanguage("gujarati"); err != nil {
		t.Fatalf("ChangeLanguage() error = %v", err)
	}
	if got := f.ctrl.Language().ID; got != "gujarati" {
		t.Errorf("Language() = %v, want gujarati", got)
	}

	f.ctrl.SubmitText("પાક")
	if err := f.ctrl.ChangeLanguage("english"); !errors.Is(err, ErrBusy) {
		t.Errorf("ChangeLanguage() while routing error = %v, want ErrBusy", err)
	}
	waitFor(t, "route call", func() bool { return router.callCount() == 1 })
	if call := router.lastCall(); call.language != "gujarati" {
		t.Errorf("route language = %q, want gujarati", call.language)
	}
	close(router.gate)

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0] != "gujarati" {
		t.Errorf("language events = %v, want [gujarati]", changes)
	}
}

func TestReset(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "a", SpokenText: "a"}}
	f := newFixture(t, router, nil, Options{})

	for i := 0; i < 2; i++ {
		f.ctrl.SubmitText("q")
		f.waitIdleWith(t, 3+2*i)
	}

	if err := f.ctrl.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	msgs := f.ctrl.Messages()
	if len(msgs) != 1 || msgs[0].Text != history.DefaultGreeting {
		t.Errorf("Messages() = %+v, want single greeting", msgs)
	}
}

func TestReset_Busy(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{})}
	f := newFixture(t, router, nil, Options{})

	f.ctrl.SubmitText("q")
	if err := f.ctrl.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("Reset() while routing error = %v, want ErrBusy", err)
	}
	close(router.gate)
}

func TestClose_DiscardsPendingReply(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{}), result: backend.Result{DisplayText: "late", SpokenText: "late"}}
	f := newFixture(t, router, nil, Options{})

	f.ctrl.SubmitText("q")
	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	close(router.gate)
	time.Sleep(50 * time.Millisecond)

	if n := f.store.Len(); n != 2 {
		t.Errorf("history len = %d, want 2", n)
	}
	if f.ctrl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", f.ctrl.State())
	}
	if err := f.ctrl.SubmitText("again"); !errors.Is(err, ErrClosed) {
		t.Errorf("SubmitText() after Close() error = %v, want ErrClosed", err)
	}
	if f.ctrl.StartCapture() {
		t.Error("StartCapture() after Close() = true")
	}
	if err := f.ctrl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRouteTimeout(t *testing.T) {
	router := &fakeRouter{gate: make(chan struct{})}
	f := newFixture(t, router, nil, Options{RouteTimeout: 30 * time.Millisecond})
	defer close(router.gate)

	f.ctrl.SubmitText("q")
	f.waitIdleWith(t, 3)
	if got := f.ctrl.Messages()[2].Text; got != backend.ConnectivityMessage {
		t.Errorf("reply = %q, want connectivity message", got)
	}
}

func TestStateTransitions_AlwaysValid(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "a", SpokenText: "a"}}
	synth := newFakeSynth(voice.Candidate{VoiceID: "v", LocaleTag: "en-IN"})
	f := newFixture(t, router, synth, Options{})

	var mu sync.Mutex
	var seen [][2]State
	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventStateChanged {
			mu.Lock()
			seen = append(seen, [2]State{ev.Previous, ev.State})
			mu.Unlock()
		}
	})

	f.ctrl.SubmitText("typed")
	f.waitIdleWith(t, 3)
	f.ctrl.StartCapture()
	f.capture.results <- captureResult{text: "spoken"}
	f.waitIdleWith(t, 5)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("no state events")
	}
	for _, tr := range seen {
		if !isValidTransition(tr[0], tr[1]) {
			t.Errorf("invalid transition %v -> %v", tr[0], tr[1])
		}
	}
}

func TestGuards_WhileSpeaking(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "long answer", SpokenText: "long answer"}}
	synth := newFakeSynth(voice.Candidate{VoiceID: "v1", LocaleTag: "hi-IN"})
	synth.hold = true
	f := newFixture(t, router, synth, Options{Language: "hindi"})

	f.ctrl.SubmitText("बताइए")
	waitFor(t, "speaking", func() bool { return f.ctrl.State() == StateSpeaking })

	if f.ctrl.StartCapture() {
		t.Error("StartCapture() while speaking = true, want false")
	}
	if got := f.ctrl.State(); got != StateSpeaking {
		t.Errorf("State() after StartCapture() = %v, want speaking", got)
	}
	if n := f.capture.callCount(); n != 0 {
		t.Errorf("capture calls = %d, want 0", n)
	}

	if err := f.ctrl.ChangeLanguage("tamil"); !errors.Is(err, ErrBusy) {
		t.Errorf("ChangeLanguage() while speaking error = %v, want ErrBusy", err)
	}
	if got := f.ctrl.Language().ID; got != "hindi" {
		t.Errorf("Language() = %v, want hindi", got)
	}
	if err := f.ctrl.SubmitText("again"); !errors.Is(err, ErrBusy) {
		t.Errorf("SubmitText() while speaking error = %v, want ErrBusy", err)
	}

	f.ctrl.Stop()
}

func TestGuards_WhileListening(t *testing.T) {
	f := newFixture(t, &fakeRouter{}, nil, Options{})

	if !f.ctrl.StartCapture() {
		t.Fatal("StartCapture() = false")
	}
	if err := f.ctrl.ChangeLanguage("marathi"); !errors.Is(err, ErrBusy) {
		t.Errorf("ChangeLanguage() while listening error = %v, want ErrBusy", err)
	}
	if got := f.ctrl.Language().ID; got != "english" {
		t.Errorf("Language() = %v, want english", got)
	}
	if got := f.ctrl.State(); got != StateListening {
		t.Errorf("State() = %v, want listening", got)
	}
	f.ctrl.Stop()
}

func TestListenerPanic_DoesNotStopSession(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "ok", SpokenText: "ok"}}
	f := newFixture(t, router, nil, Options{})

	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventMessageAppended {
			panic("listener bug")
		}
	})
	var mu sync.Mutex
	var appended int
	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventMessageAppended {
			mu.Lock()
			appended++
			mu.Unlock()
		}
	})

	if err := f.ctrl.SubmitText("hello"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	f.waitIdleWith(t, 3)

	mu.Lock()
	defer mu.Unlock()
	if appended != 2 {
		t.Errorf("events delivered to healthy listener = %d, want 2", appended)
	}
	if err := f.ctrl.ChangeLanguage("hindi"); err != nil {
		t.Errorf("ChangeLanguage() after listener panic error = %v", err)
	}
}

func TestTranslatedReply_CarriesEnglishQuestion(t *testing.T) {
	router := &fakeRouter{result: backend.Result{
		DisplayText:     "ಭತ್ತ ಬಿತ್ತಿ.",
		SpokenText:      "ಭತ್ತ ಬಿತ್ತಿ.",
		OriginalText:    "Sow paddy.",
		Translated:      true,
		EnglishQuestion: "What should I sow?",
	}}
	f := newFixture(t, router, nil, Options{Language: "kannada"})

	var mu sync.Mutex
	var replies []Event
	f.ctrl.Subscribe(func(ev Event) {
		if ev.Type == EventMessageAppended && ev.Message.Sender == history.SenderAssistant {
			mu.Lock()
			replies = append(replies, ev)
			mu.Unlock()
		}
	})

	f.ctrl.SubmitText("ಏನು ಬಿತ್ತಬೇಕು?")
	f.waitIdleWith(t, 3)

	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 || replies[0].EnglishQuestion != "What should I sow?" {
		t.Fatalf("assistant events = %+v", replies)
	}
	user := f.ctrl.Messages()[1]
	if user.Text != "ಏನು ಬಿತ್ತಬೇಕು?" || user.OriginalText != "" {
		t.Errorf("user message changed: %+v", user)
	}
}

func TestAttach_SnapshotAndEventsDoNotOverlap(t *testing.T) {
	router := &fakeRouter{result: backend.Result{DisplayText: "a", SpokenText: "a"}}
	f := newFixture(t, router, nil, Options{})

	for i := 0; i < 3; i++ {
		if err := f.ctrl.SubmitText("q"); err != nil {
			t.Fatalf("SubmitText() error = %v", err)
		}

		var snapshot []history.Message
		var mu sync.Mutex
		var events []int64
		cancel := f.ctrl.Attach(func() {
			snapshot = f.ctrl.Messages()
		}, func(ev Event) {
			if ev.Type == EventMessageAppended {
				mu.Lock()
				events = append(events, ev.Message.ID)
				mu.Unlock()
			}
		})
		f.waitIdleWith(t, 3+2*i)
		cancel()

		mu.Lock()
		seen := make(map[int64]bool)
		for _, m := range snapshot {
			seen[m.ID] = true
		}
		for _, id := range events {
			if seen[id] {
				t.Errorf("message %d delivered in snapshot and as event", id)
			}
			seen[id] = true
		}
		mu.Unlock()
		if len(seen) != 3+2*i {
			t.Errorf("round %d: snapshot+events cover %d messages, want %d", i, len(seen), 3+2*i)
		}
	}
}

func TestAttach_AfterClose(t *testing.T) {
	f := newFixture(t, &fakeRouter{}, nil, Options{})
	f.ctrl.Close()

	called := false
	cancel := f.ctrl.Attach(func() { called = true }, func(Event) {})
	defer cancel()
	if !called {
		t.Error("init not run after Close()")
	}
}
