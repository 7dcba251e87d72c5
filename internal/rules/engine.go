package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pedrozc90/wabridge/internal/model"
	"go.uber.org/zap"
)

// Sender sends a text message on behalf of an action. Implemented by
// the session client.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) (ok bool, detail string)
}

// Engine evaluates messages against the rule store and executes the
// actions of every matching rule. Evaluation runs on a single worker
// goroutine fed by a buffered queue, so action I/O never blocks the
// caller's receive path. Matching rules execute sequentially in store
// order.
type Engine struct {
	store  *Store
	sender Sender
	logDir string
	logger *zap.Logger
	queue  chan model.Message
	cancel context.CancelFunc
}

// NewEngine creates an automation engine. logDir is where log actions
// append their files.
func NewEngine(store *Store, sender Sender, logDir string, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		sender: sender,
		logDir: logDir,
		logger: logger,
		queue:  make(chan model.Message, 256),
	}
}

// Start launches the evaluation worker.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go func() {
		for {
			select {
			case msg := <-e.queue:
				e.evaluate(ctx, msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the evaluation worker. Queued messages are dropped.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Evaluate enqueues a message for rule evaluation. Fire-and-forget:
// when the queue is full the evaluation is dropped and logged, never
// the caller blocked.
func (e *Engine) Evaluate(msg model.Message) {
	select {
	case e.queue <- msg:
	default:
		e.logger.Warn("automation queue full, dropping evaluation",
			zap.String("msg_id", msg.ID))
	}
}

func (e *Engine) evaluate(ctx context.Context, msg model.Message) {
	for _, rule := range e.store.Rules() {
		if !rule.Matches(msg) {
			continue
		}
		e.logger.Info("rule matched",
			zap.String("rule", rule.Name),
			zap.String("msg_id", msg.ID))
		for _, action := range rule.Actions {
			if err := e.execute(ctx, action, msg); err != nil {
				// One failing action must not stop the rest.
				e.logger.Error("action failed",
					zap.String("rule", rule.Name),
					zap.String("action", action.Type),
					zap.Error(err))
			}
		}
	}
}

func (e *Engine) execute(ctx context.Context, action Action, msg model.Message) error {
	switch action.Type {
	case ActionReply:
		if ok, detail := e.sender.SendText(ctx, msg.ChatID, action.Text); !ok {
			return fmt.Errorf("reply to %s: %s", msg.ChatID, detail)
		}
		return nil
	case ActionForward:
		if action.Destination == "" {
			return fmt.Errorf("forward action has no destination")
		}
		text := fmt.Sprintf("Forwarded message from %s: %s", msg.DisplaySender(), msg.Text)
		if ok, detail := e.sender.SendText(ctx, action.Destination, text); !ok {
			return fmt.Errorf("forward to %s: %s", action.Destination, detail)
		}
		return nil
	case ActionLog:
		return e.appendLog(action, msg)
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}

func (e *Engine) appendLog(action Action, msg model.Message) error {
	name := action.File
	if name == "" {
		name = DefaultLogFile
	}
	if err := os.MkdirAll(e.logDir, 0700); err != nil {
		return fmt.Errorf("create automation log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(e.logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log target: %w", err)
	}
	line := fmt.Sprintf("[%s] %s: %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		msg.DisplaySender(), msg.Text)
	_, writeErr := f.WriteString(line)
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("append log target: %w", writeErr)
	}
	return nil
}
