package agent

import (
	"context"
	"fmt"
	"strings"

	"dsa-agent/config"
	apperrors "dsa-agent/errors"
	"dsa-agent/llmclient"
	"dsa-agent/prompts"
	"dsa-agent/tools"
	"dsa-agent/web/types"

	"go.uber.org/zap"
)

// Agent runs the reasoning loop for one question at a time. It holds only
// shared read-mostly handles; all per-turn state lives inside Run.
type Agent struct {
	cfg             *config.Config
	llm             tools.Generator
	registry        *tools.Registry
	responseHandler *ResponseHandler
	logger          *zap.Logger
}

func NewAgent(cfg *config.Config, llm tools.Generator, registry *tools.Registry, logger *zap.Logger) *Agent {
	logger.Info("Agent initialized",
		zap.Int("max_steps", cfg.MaxSteps),
		zap.Int("parse_retries", cfg.ParseRetries),
		zap.Strings("tools", registry.Names()))
	return &Agent{
		cfg:             cfg,
		llm:             llm,
		registry:        registry,
		responseHandler: NewResponseHandler(logger),
		logger:          logger,
	}
}

// Run answers question given the caller's prior turns. It always returns a
// text answer unless the input is invalid or ctx is cancelled.
func (a *Agent) Run(ctx context.Context, question string, history []types.ChatTurn) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "empty question")
	}

	pad := NewScratchpad()
	loop := NewConversationLoop(a.cfg, a.logger)
	actions := NewActionCache()
	chatHistory := formatChatHistory(history)
	toolList := a.registry.FormatForPrompt()
	toolNames := strings.Join(a.registry.Names(), ", ")

	for stepNum := 0; ; stepNum++ {
		if ok, reason := loop.ShouldContinue(stepNum); !ok {
			a.logger.Warn("Turn ended without a final answer", zap.String("reason", reason), zap.Int("steps", pad.Len()))
			return a.responseHandler.BestEffort(pad), nil
		}

		prompt := prompts.AgentPrompt(toolList, toolNames, chatHistory, question, pad.Render())
		raw, err := a.llm.Complete(ctx, prompt, llmclient.ChatOptions{
			Stop:        prompts.ReasoningStops,
			Temperature: llmclient.Temperature(a.cfg.LLMTemperature),
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			a.logger.Error("Reasoning step failed", zap.Int("step", stepNum), zap.Error(err))
			loop.RecordError()
			pad.Append(Step{
				ParseError:  err.Error(),
				Observation: fmt.Sprintf("Error: the reasoning backend failed: %v", err),
				Failed:      true,
			})
			continue
		}

		step := ParseStep(raw)
		a.logger.Debug("Parsed reasoning step",
			zap.Int("step", stepNum),
			zap.String("action", step.Action),
			zap.Bool("final", step.Final),
			zap.String("parse_error", step.ParseError))

		if step.Final {
			answer := a.responseHandler.Finalize(step.FinalAnswer, pad)
			a.logger.Info("Turn completed", zap.Int("steps", stepNum+1), zap.Int("answer_len", len(answer)))
			return answer, nil
		}

		if step.ParseError != "" {
			if loop.RecordParseFailure() {
				if answer := a.responseHandler.AcceptRawAnswer(raw); answer != "" {
					a.logger.Info("Accepting unformatted reply as final answer", zap.Int("step", stepNum))
					return a.responseHandler.Finalize(answer, pad), nil
				}
			}
			step.Observation = step.ParseError + ". " + prompts.ParseRetry(toolNames)
			pad.Append(step)
			continue
		}

		step.Observation, step.Failed = a.dispatch(ctx, step, actions, toolNames, loop)
		pad.Append(step)
	}
}

// dispatch calls the named tool and returns its observation verbatim. A tool
// error becomes the observation and reports failed.
func (a *Agent) dispatch(ctx context.Context, step Step, actions *ActionCache, toolNames string, loop *ConversationLoop) (observation string, failed bool) {
	tool, ok := a.registry.Lookup(step.Action)
	if !ok {
		a.logger.Warn("Model selected an unknown tool", zap.String("action", step.Action))
		loop.RecordError()
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", step.Action, toolNames), true
	}

	if obs, hit := actions.Get(tool.Name(), step.ActionInput); hit {
		a.logger.Info("Repeated action, reusing earlier observation",
			zap.String("tool", tool.Name()),
			zap.Int("repeats", actions.Repeats(tool.Name(), step.ActionInput)))
		loop.RecordError()
		return obs, false
	}

	a.logger.Info("Calling tool", zap.String("tool", tool.Name()))
	obs, err := tool.Call(ctx, step.ActionInput)
	if err != nil {
		a.logger.Warn("Tool call failed", zap.String("tool", tool.Name()), zap.Error(err))
		loop.RecordError()
		return err.Error(), true
	}
	loop.RecordSuccess()
	actions.Add(tool.Name(), step.ActionInput, obs)
	return obs, false
}
