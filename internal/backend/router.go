package backend

import (
	"context"
	"strings"

	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// FallbackPhrase is shown and spoken when the backend answers without text
const FallbackPhrase = "Sorry, I'm having trouble right now. Please try again."

// ConnectivityMessage is the assistant reply after a NetworkError
const ConnectivityMessage = "Sorry, I couldn't connect to the server. Please check your connection and try again."

// Result is the outcome of one routed turn
type Result struct {
	// DisplayText goes into the history
	DisplayText string
	// SpokenText is synthesized
	SpokenText string
	// OriginalText is the English answer when DisplayText is a translation
	OriginalText string
	// Translated is set when the translate endpoint produced the answer
	Translated bool
	// EnglishQuestion is the backend's English rendering of the user's
	// message, empty when it matches what the user said
	EnglishQuestion string
}

// Router sends a user message to the endpoint matching its language
type Router struct {
	api    ChatAPI
	logger *logging.Logger
}

// NewRouter creates a router over api
func NewRouter(api ChatAPI, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{api: api, logger: logger}
}

// Route delivers message to the backend. The default language goes to
// the plain chat endpoint; every other language goes through translation.
func (r *Router) Route(ctx context.Context, message, languageID, userID string) (Result, error) {
	if languageID == "" || languageID == language.DefaultLanguageID {
		return r.routeChat(ctx, message, userID)
	}
	return r.routeTranslated(ctx, message, languageID)
}

func (r *Router) routeChat(ctx context.Context, message, userID string) (Result, error) {
	resp, err := r.api.Chat(ctx, ChatRequest{Message: message, UserID: userID})
	if err != nil {
		return Result{}, err
	}
	answer := strings.TrimSpace(resp.Response)
	if !resp.Success {
		detail := answer
		if detail == "" {
			detail = FallbackPhrase
		}
		return Result{}, &BackendError{Detail: detail}
	}
	if answer == "" {
		answer = FallbackPhrase
	}
	return Result{DisplayText: answer, SpokenText: answer}, nil
}

func (r *Router) routeTranslated(ctx context.Context, message, languageID string) (Result, error) {
	resp, err := r.api.TranslateChat(ctx, TranslateRequest{Text: message, Language: languageID})
	if err != nil {
		return Result{}, err
	}

	translated := strings.TrimSpace(resp.TranslatedResponse)
	english := strings.TrimSpace(resp.EnglishResponse)
	if english == "" {
		english = strings.TrimSpace(resp.Response)
	}

	res := Result{Translated: true}
	switch {
	case translated != "":
		res.SpokenText = translated
		if english != translated {
			res.OriginalText = english
		}
	case english != "":
		r.logger.Warn("Translation missing, answering in English", "language", languageID)
		res.SpokenText = english
	default:
		r.logger.Warn("Backend returned no answer text", "language", languageID)
		res.SpokenText = FallbackPhrase
	}
	res.DisplayText = res.SpokenText

	if q := strings.TrimSpace(resp.EnglishQuestion); q != "" && q != strings.TrimSpace(message) {
		res.EnglishQuestion = q
		r.logger.Debug("Question translated", "language", languageID, "english", q)
	}
	return res, nil
}
