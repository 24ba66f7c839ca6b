package agent

import (
	"dsa-agent/config"

	"go.uber.org/zap"
)

// ConversationLoop guards one turn: it enforces the step budget and stops
// early when tools or the model keep failing.
type ConversationLoop struct {
	cfg               *config.Config
	consecutiveErrors int
	parseFailures     int
	logger            *zap.Logger
}

func NewConversationLoop(cfg *config.Config, logger *zap.Logger) *ConversationLoop {
	return &ConversationLoop{cfg: cfg, logger: logger}
}

// ShouldContinue checks if the loop should continue based on step count and consecutive errors.
// Returns (shouldContinue, reason). If shouldContinue is false, reason contains the break message.
func (c *ConversationLoop) ShouldContinue(step int) (bool, string) {
	if c.cfg.ConsecutiveErrors > 0 && c.consecutiveErrors >= c.cfg.ConsecutiveErrors {
		c.logger.Warn("Agent produced consecutive errors, stopping turn",
			zap.Int("consecutive_errors", c.consecutiveErrors))
		return false, "Consecutive errors."
	}
	if step >= c.cfg.MaxSteps {
		c.logger.Info("Reached maximum steps limit", zap.Int("max_steps", c.cfg.MaxSteps))
		return false, "Maximum steps reached."
	}
	return true, ""
}

// RecordParseFailure counts a malformed step and reports whether the retry
// allowance is used up.
func (c *ConversationLoop) RecordParseFailure() (exhausted bool) {
	c.parseFailures++
	c.RecordError()
	return c.parseFailures > c.cfg.ParseRetries
}

// RecordError increments the consecutive error counter and logs it.
func (c *ConversationLoop) RecordError() {
	c.consecutiveErrors++
	c.logger.Debug("Recorded step error", zap.Int("consecutive_errors", c.consecutiveErrors))
}

// RecordSuccess resets the consecutive error counter.
func (c *ConversationLoop) RecordSuccess() {
	if c.consecutiveErrors > 0 {
		c.logger.Debug("Resetting consecutive error count after successful step")
		c.consecutiveErrors = 0
	}
}

func (c *ConversationLoop) ConsecutiveErrors() int {
	return c.consecutiveErrors
}
