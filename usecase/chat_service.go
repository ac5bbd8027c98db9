package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/extract"
)

const medicalSystemPrompt = `You are an experienced, empathetic AI doctor. ` +
	`Answer health questions clearly and carefully. When the user describes ` +
	`symptoms, respond with labeled sections: Reported Symptoms, Diagnosis ` +
	`Summary, Recommended Medications, General Advice, Follow-Up. Always ` +
	`recommend seeing a licensed physician for serious concerns.`

const healthSystemPrompt = `You are a supportive personal health coach. ` +
	`Help with fitness, nutrition, sleep, and habit building. When the user ` +
	`asks for a plan, respond with labeled sections: Health Goals, Diet Plan, ` +
	`Exercise Plan, Lifestyle Recommendations, Follow-Up, with Day 1 / Day 2 ` +
	`breakdowns where useful.`

// apologyReply keeps the transcript coherent when the model call fails.
const apologyReply = "I'm sorry, I couldn't process that right now. Please try again in a moment."

// ChatReply is the outcome of one conversational turn.
type ChatReply struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	Record    *Record `json:"record,omitempty"`
}

// ChatService runs one conversational turn: append the user message, build
// the bounded prompt context, call the model once, extract any structured
// record, and append the reply to the session it was requested for.
type ChatService struct {
	llm    repositories.ChatCompleter
	users  repositories.UserRepository
	logger *zap.Logger
}

func NewChatService(llm repositories.ChatCompleter, users repositories.UserRepository, logger *zap.Logger) *ChatService {
	return &ChatService{llm: llm, users: users, logger: logger}
}

// SendMessage appends input to the named session and produces the
// assistant reply. Model failures degrade to an apology reply rather than
// an error; only an unknown session id fails. The reply is appended to the
// session it was requested for, and dropped with a log if that session was
// deleted while the model call was in flight.
func (s *ChatService) SendMessage(ctx context.Context, store *SessionStore, sessionID, input, language string) (*ChatReply, error) {
	userMsg := entities.NewMessage(entities.MessageRoleUser, input)
	userMsg.Language = language
	if err := store.AppendMessage(sessionID, userMsg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	req := repositories.ChatRequest{
		SystemPrompt: s.systemPrompt(ctx, store),
		Context:      store.PromptContext(ctx),
		Input:        input,
	}

	text, err := s.llm.Complete(ctx, req)
	var record *Record
	if err != nil {
		s.logger.Warn("chat completion failed, replying with apology",
			zap.String("session_id", sessionID), zap.Error(err))
		text = apologyReply
	} else {
		record = classifyReply(store.Domain(), text, input)
	}

	reply := entities.NewMessage(entities.MessageRoleAssistant, text)
	reply.Language = language
	if err := store.AppendMessage(sessionID, reply); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("dropping reply for deleted session",
				zap.String("session_id", sessionID))
			return &ChatReply{SessionID: sessionID, Text: text, Record: record}, nil
		}
		return nil, fmt.Errorf("append reply: %w", err)
	}

	return &ChatReply{SessionID: sessionID, Text: text, Record: record}, nil
}

func (s *ChatService) systemPrompt(ctx context.Context, store *SessionStore) string {
	prompt := medicalSystemPrompt
	if store.Domain() == entities.ChatDomainHealth {
		prompt = healthSystemPrompt
	}

	profile, err := s.users.GetProfile(ctx, store.UserID())
	if err != nil {
		s.logger.Warn("failed to load health profile for prompt", zap.Error(err))
		return prompt
	}
	if profile == nil {
		return prompt
	}
	if summary := profile.PromptSummary(); summary != "" {
		prompt += "\n\nUser health profile: " + summary
	}
	return prompt
}

// classifyReply decides whether a reply carries a structured record and
// extracts it. Substring heuristics, same order every time.
func classifyReply(d entities.ChatDomain, reply, input string) *Record {
	switch d {
	case entities.ChatDomainMedical:
		if extract.LooksLikePrescription(reply) {
			return &Record{Kind: RecordPrescription, Prescription: extract.ParsePrescription(reply, input)}
		}
	case entities.ChatDomainHealth:
		if extract.LooksLikeHealthPlan(reply) {
			return &Record{Kind: RecordHealthPlan, HealthPlan: extract.ParseHealthPlan(reply, input)}
		}
		if extract.LooksLikeRecipes(reply) {
			return &Record{Kind: RecordRecipes, Recipes: extract.ParseRecipes(reply, input)}
		}
		if extract.LooksLikeNutrition(reply) {
			return &Record{Kind: RecordNutrition, Nutrition: extract.ParseNutrition(reply, input)}
		}
	}
	return nil
}
