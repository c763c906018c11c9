// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     session
// Description: Conversation session controller
// Author:      Mike Stoffels
// Created:     2026-09-25
// License:     MIT
// ============================================================================

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msto63/krishisaathi/internal/backend"
	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/voice"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var (
	// ErrBusy is returned when an operation needs the session to be idle
	ErrBusy = errors.New("session is busy")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("session is closed")

	// ErrEmptyText is returned for blank typed input
	ErrEmptyText = errors.New("message is empty")
)

// Deps are the collaborators of a controller. Capture and Synthesis may
// be nil, which disables voice input or output respectively.
type Deps struct {
	Catalog   Catalog
	History   *history.Store
	Router    Router
	Capture   SpeechCapturePort
	Synthesis SpeechSynthesisPort
}

// Options configures a controller
type Options struct {
	// UserID is sent with plain chat requests
	UserID string

	// Language is the initially selected language id
	Language string

	// RouteTimeout bounds one backend call (default 20s)
	RouteTimeout time.Duration

	// SpeakErrors also speaks backend error replies
	SpeakErrors bool

	// Rate is the relative speaking rate passed to synthesis (default 0.8)
	Rate float64

	Logger *logging.Logger
}

// Controller owns the interaction state of one conversation. All state
// changes happen on a single goroutine that drains an event queue;
// capture, routing and synthesis run on their own goroutines and report
// back through the same queue.
type Controller struct {
	catalog   Catalog
	resolver  *voice.Resolver
	history   *history.Store
	router    Router
	capture   SpeechCapturePort
	synth     SpeechSynthesisPort
	opts      Options
	logger    *logging.Logger
	sm        *StateMachine
	voices    voice.Set
	listeners subscribers

	langMu sync.RWMutex
	lang   language.Language

	qmu   sync.Mutex
	queue []event
	wake  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	// owned by the run goroutine
	turn     uint64
	opCancel context.CancelFunc
}

// New creates a controller and starts its event loop
func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Catalog == nil || deps.History == nil || deps.Router == nil {
		return nil, errors.New("session: catalog, history and router are required")
	}
	if opts.RouteTimeout <= 0 {
		opts.RouteTimeout = 20 * time.Second
	}
	if opts.Rate == 0 {
		opts.Rate = 0.8
	}
	if opts.Language == "" {
		opts.Language = language.DefaultLanguageID
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lang, err := deps.Catalog.Resolve(opts.Language)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		catalog:  deps.Catalog,
		resolver: voice.NewResolver(deps.Catalog),
		history:  deps.History,
		router:   deps.Router,
		capture:  deps.Capture,
		synth:    deps.Synthesis,
		opts:     opts,
		logger:   logger,
		sm:       NewStateMachine(),
		lang:     lang,
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.listeners.logger = logger

	c.sm.AddListener(func(oldState, newState State) {
		c.logger.Debug("State changed", "from", oldState.String(), "to", newState.String())
		c.listeners.publish(Event{Type: EventStateChanged, State: newState, Previous: oldState})
	})

	go c.run()

	if c.synth != nil {
		go c.refreshVoices()
		if w, ok := c.synth.(VoiceWatcher); ok {
			go c.watchVoices(w)
		}
	}

	return c, nil
}

// State returns the current interaction state
func (c *Controller) State() State {
	return c.sm.Current()
}

// Language returns the selected language
func (c *Controller) Language() language.Language {
	c.langMu.RLock()
	defer c.langMu.RUnlock()
	return c.lang
}

// Languages lists the selectable languages
func (c *Controller) Languages() []language.Language {
	return c.catalog.List()
}

// Messages returns a copy of the conversation
func (c *Controller) Messages() []history.Message {
	return c.history.List()
}

// Voices returns the cached synthesis voices
func (c *Controller) Voices() []voice.Candidate {
	return c.voices.Snapshot()
}

// CanCapture reports whether a capture port is configured
func (c *Controller) CanCapture() bool {
	return c.capture != nil
}

// Subscribe registers fn for session events and returns a function that
// removes it again
func (c *Controller) Subscribe(fn Listener) (cancel func()) {
	return c.listeners.add(fn)
}

// Attach runs init and registers fn in one step of the session
// goroutine. fn receives exactly the events that follow the state init
// observed, so a snapshot taken in init never overlaps them.
func (c *Controller) Attach(init func(), fn Listener) (cancel func()) {
	reply := make(chan func(), 1)
	if c.post(cmdAttach{init: init, fn: fn, reply: reply}) {
		select {
		case cancel := <-reply:
			return cancel
		case <-c.done:
			select {
			case cancel := <-reply:
				return cancel
			default:
			}
		}
	}
	// closed: no further events will be published
	init()
	return c.listeners.add(fn)
}

// StartCapture begins listening. It only has an effect while idle and
// reports whether capture was started.
func (c *Controller) StartCapture() bool {
	reply := make(chan bool, 1)
	if !c.post(cmdStartCapture{reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-c.done:
		return false
	}
}

// SubmitText sends typed input. The user message is in the history when
// SubmitText returns; the reply arrives asynchronously.
func (c *Controller) SubmitText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return c.request(func(reply chan error) event { return cmdSubmit{text: text, reply: reply} })
}

// Stop cancels speech output or an ongoing capture and reports whether
// anything was stopped
func (c *Controller) Stop() bool {
	reply := make(chan bool, 1)
	if !c.post(cmdStop{reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-c.done:
		return false
	}
}

// ChangeLanguage selects another language. Only allowed while idle.
func (c *Controller) ChangeLanguage(id string) error {
	return c.request(func(reply chan error) event { return cmdChangeLanguage{id: id, reply: reply} })
}

// Reset clears the conversation down to a fresh greeting. Speech output
// is stopped first; while listening or routing ErrBusy is returned.
func (c *Controller) Reset() error {
	return c.request(func(reply chan error) event { return cmdReset{reply: reply} })
}

// Close tears the session down. Pending backend replies and capture or
// synthesis results are discarded.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	<-c.done
	return nil
}

// Done is closed once the session has shut down
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) request(build func(chan error) event) error {
	reply := make(chan error, 1)
	if !c.post(build(reply)) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// ----------------------------------------------------------------------------
// Event loop
// ----------------------------------------------------------------------------

type event interface{}

type cmdStartCapture struct {
	reply chan bool
}

type cmdStop struct {
	reply chan bool
}

type cmdSubmit struct {
	text  string
	reply chan error
}

type cmdChangeLanguage struct {
	id    string
	reply chan error
}

type cmdReset struct {
	reply chan error
}

type cmdAttach struct {
	init  func()
	fn    Listener
	reply chan func()
}

type captureDone struct {
	turn uint64
	text string
	err  error
}

type routeDone struct {
	turn   uint64
	lang   string
	result backend.Result
	err    error
}

type speakDone struct {
	turn uint64
	err  error
}

// post enqueues ev; it never blocks
func (c *Controller) post(ev event) bool {
	if c.closed.Load() {
		return false
	}
	c.qmu.Lock()
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Controller) drain() []event {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case <-c.wake:
			for _, ev := range c.drain() {
				if c.ctx.Err() != nil {
					break
				}
				c.handle(ev)
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.cancelOp()
	c.sm.Reset()
	c.logger.Debug("Session closed")
}

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case cmdStartCapture:
		e.reply <- c.startCapture()
	case cmdSubmit:
		e.reply <- c.submit(e.text)
	case cmdStop:
		e.reply <- c.stop()
	case cmdChangeLanguage:
		e.reply <- c.changeLanguage(e.id)
	case cmdReset:
		e.reply <- c.reset()
	case cmdAttach:
		if err := safeCall(func() error { e.init(); return nil }); err != nil {
			c.logger.Error("Subscriber init failed", "error", err)
		}
		e.reply <- c.listeners.add(e.fn)
	case captureDone:
		c.onCaptured(e)
	case routeDone:
		c.onRouted(e)
	case speakDone:
		c.onSpoken(e)
	default:
		c.logger.Warn("Unknown session event", "type", fmt.Sprintf("%T", ev))
	}
}

// beginOp starts a new turn and returns a context for its port call
func (c *Controller) beginOp(timeout time.Duration) (context.Context, uint64) {
	c.cancelOp()
	c.turn++
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.opCancel = cancel
	return ctx, c.turn
}

func (c *Controller) cancelOp() {
	if c.opCancel != nil {
		c.opCancel()
		c.opCancel = nil
	}
}

// ----------------------------------------------------------------------------
// Handlers (run goroutine only)
// ----------------------------------------------------------------------------

func (c *Controller) startCapture() bool {
	if c.sm.Current() != StateIdle {
		return false
	}
	if c.capture == nil {
		c.notice("Speech input is not available")
		return false
	}

	lang := c.Language()
	ctx, turn := c.beginOp(0)
	c.sm.Transition(StateListening)
	c.logger.Info("Listening", "language", lang.ID, "locale", lang.LocaleTag)

	go func() {
		var text string
		err := safeCall(func() error {
			var err error
			text, err = c.capture.Listen(ctx, lang.LocaleTag)
			return err
		})
		c.post(captureDone{turn: turn, text: text, err: err})
	}()
	return true
}

func (c *Controller) onCaptured(e captureDone) {
	if e.turn != c.turn || c.sm.Current() != StateListening {
		return
	}
	c.cancelOp()

	if e.err != nil {
		if !errors.Is(e.err, context.Canceled) {
			c.logger.Warn("Speech capture failed", "error", e.err)
			c.notice("Speech recognition failed: " + e.err.Error())
		}
		c.sm.Transition(StateIdle)
		return
	}

	text := strings.TrimSpace(e.text)
	if text == "" {
		c.logger.Debug("Empty transcript")
		c.sm.Transition(StateIdle)
		return
	}

	c.logger.Info("Transcription", "text", text)
	c.appendMessage(history.SenderUser, text, "", c.Language().ID)
	c.beginRoute(text)
}

func (c *Controller) submit(text string) error {
	if c.sm.Current() != StateIdle {
		return ErrBusy
	}
	text = strings.TrimSpace(text)
	c.appendMessage(history.SenderUser, text, "", c.Language().ID)
	c.beginRoute(text)
	return nil
}

func (c *Controller) beginRoute(text string) {
	lang := c.Language().ID
	ctx, turn := c.beginOp(c.opts.RouteTimeout)
	c.sm.Transition(StateRouting)

	go func() {
		var res backend.Result
		err := safeCall(func() error {
			var err error
			res, err = c.router.Route(ctx, text, lang, c.opts.UserID)
			return err
		})
		c.post(routeDone{turn: turn, lang: lang, result: res, err: err})
	}()
}

func (c *Controller) onRouted(e routeDone) {
	if e.turn != c.turn || c.sm.Current() != StateRouting {
		c.logger.Debug("Stale backend reply dropped", "turn", e.turn)
		return
	}
	c.cancelOp()

	if e.err != nil {
		reply, speak := c.apology(e.err)
		c.appendMessage(history.SenderAssistant, reply, "", e.lang)
		if speak {
			c.speak(reply)
			return
		}
		c.sm.Transition(StateIdle)
		return
	}

	if msg, ok := c.record(history.SenderAssistant, e.result.DisplayText, e.result.OriginalText, e.lang); ok {
		c.listeners.publish(Event{Type: EventMessageAppended, Message: msg, EnglishQuestion: e.result.EnglishQuestion})
	}
	c.speak(e.result.SpokenText)
}

// apology turns a routing error into the assistant reply and reports
// whether it should be spoken
func (c *Controller) apology(err error) (string, bool) {
	if be, ok := backend.AsBackendError(err); ok {
		c.logger.Warn("Backend reported failure", "status", be.Status, "detail", be.Detail)
		detail := strings.TrimSpace(be.Detail)
		if detail == "" {
			detail = backend.FallbackPhrase
		}
		return detail, c.opts.SpeakErrors
	}
	c.logger.Error("Backend unreachable", "error", err)
	return backend.ConnectivityMessage, false
}

func (c *Controller) speak(text string) {
	if c.synth == nil || strings.TrimSpace(text) == "" {
		c.sm.Transition(StateIdle)
		return
	}
	if c.voices.Version() > 0 && c.voices.Len() == 0 {
		c.logger.Warn("No synthesis voice available, reply shown as text only")
		c.sm.Transition(StateIdle)
		return
	}

	lang := c.Language()
	ctx, turn := c.beginOp(0)
	c.sm.Transition(StateSpeaking)

	go func() {
		err := safeCall(func() error {
			voices := c.voices.Snapshot()
			if len(voices) == 0 {
				loaded, err := c.synth.Voices(ctx)
				if err != nil {
					return fmt.Errorf("failed to list voices: %w", err)
				}
				c.voices.Replace(loaded)
				voices = loaded
			}
			cand, err := c.resolver.SelectCandidate(lang.ID, voices)
			if err != nil {
				return err
			}
			return c.synth.Speak(ctx, Utterance{
				Text:      text,
				VoiceID:   cand.VoiceID,
				LocaleTag: cand.LocaleTag,
				Rate:      c.opts.Rate,
			})
		})
		c.post(speakDone{turn: turn, err: err})
	}()
}

func (c *Controller) onSpoken(e speakDone) {
	if e.turn != c.turn || c.sm.Current() != StateSpeaking {
		return
	}
	c.cancelOp()

	switch {
	case e.err == nil, errors.Is(e.err, context.Canceled):
	case errors.Is(e.err, voice.ErrNoVoiceAvailable):
		c.logger.Warn("No synthesis voice available, reply shown as text only")
	default:
		c.logger.Warn("Speech synthesis failed", "error", e.err)
		c.notice("Speech output failed: " + e.err.Error())
	}
	c.sm.Transition(StateIdle)
}

func (c *Controller) stop() bool {
	switch c.sm.Current() {
	case StateSpeaking, StateListening:
		c.cancelOp()
		c.turn++
		c.sm.Transition(StateIdle)
		return true
	default:
		return false
	}
}

func (c *Controller) changeLanguage(id string) error {
	if c.sm.Current() != StateIdle {
		return ErrBusy
	}
	lang, err := c.catalog.Resolve(id)
	if err != nil {
		return err
	}

	c.langMu.Lock()
	changed := c.lang.ID != lang.ID
	c.lang = lang
	c.langMu.Unlock()

	if changed {
		c.logger.Info("Language changed", "language", lang.ID)
		c.listeners.publish(Event{Type: EventLanguageChanged, Language: lang.ID})
	}
	return nil
}

func (c *Controller) reset() error {
	switch c.sm.Current() {
	case StateListening, StateRouting:
		return ErrBusy
	case StateSpeaking:
		c.stop()
	}

	_, err := c.history.Reset(c.ctx)
	if err != nil && !history.IsPersistError(err) {
		return err
	}
	if err != nil {
		c.notice("Conversation cleared, but it could not be saved")
	}
	c.listeners.publish(Event{Type: EventHistoryReset, Messages: c.history.List()})
	return nil
}

func (c *Controller) appendMessage(sender history.Sender, text, original, lang string) {
	if msg, ok := c.record(sender, text, original, lang); ok {
		c.listeners.publish(Event{Type: EventMessageAppended, Message: msg})
	}
}

// record adds a message to the history. A persistence failure keeps the
// message and only raises a notice.
func (c *Controller) record(sender history.Sender, text, original, lang string) (history.Message, bool) {
	msg, err := c.history.Add(c.ctx, sender, text, original, lang)
	if err != nil && !history.IsPersistError(err) {
		c.logger.Error("Failed to append message", "error", err)
		return history.Message{}, false
	}
	if err != nil {
		c.notice("Conversation could not be saved")
	}
	return msg, true
}

func (c *Controller) notice(text string) {
	c.listeners.publish(Event{Type: EventNotice, Notice: text})
}

// ----------------------------------------------------------------------------
// Voices
// ----------------------------------------------------------------------------

func (c *Controller) refreshVoices() {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	var voices []voice.Candidate
	err := safeCall(func() error {
		var err error
		voices, err = c.synth.Voices(ctx)
		return err
	})
	if err != nil {
		c.logger.Warn("Failed to list synthesis voices", "error", err)
		return
	}
	c.voices.Replace(voices)
	c.logger.Debug("Synthesis voices loaded", "count", len(voices))
}

func (c *Controller) watchVoices(w VoiceWatcher) {
	changes := w.VoicesChanged()
	for {
		select {
		case <-c.ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			c.refreshVoices()
		}
	}
}

// safeCall runs fn and converts a panic into an error
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("port panic: %v", r)
		}
	}()
	return fn()
}
