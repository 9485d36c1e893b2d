package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dshills/triad/internal/providers"
)

// DefaultMaxIterations bounds the tool loop when Runner.MaxIterations is unset.
const DefaultMaxIterations = 8

// ErrEmptyAnswer is returned when the model finishes without any text.
var ErrEmptyAnswer = errors.New("agent returned an empty answer")

// Task is the work handed to an agent.
type Task struct {
	Instruction    string
	ExpectedOutput string
	Context        []ContextItem
}

// ContextItem is an upstream stage's output made available to a task.
type ContextItem struct {
	Title  string
	Output string
}

// Result is an agent's final answer.
type Result struct {
	Text       string
	ToolCalls  int
	TokensUsed int
}

// Runner drives one agent through the model's tool-calling loop.
type Runner struct {
	Model         providers.ChatModel
	MaxIterations int
	Logger        *slog.Logger

	// OnToolCall, when set, is told about every tool invocation. err is nil
	// on success.
	OnToolCall func(tool string, err error)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run executes task as agent d and returns the final text answer. Tool
// failures are reported back to the model; only model errors abort.
func (r *Runner) Run(ctx context.Context, d Descriptor, task Task) (Result, error) {
	log := r.logger().With("agent", d.Role)
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var specs []providers.ToolSpec
	for _, t := range d.Tools {
		specs = append(specs, t.Spec())
	}

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: d.SystemPrompt()},
		{Role: providers.RoleUser, Content: UserPrompt(task)},
	}

	var res Result
	for i := 0; i < maxIter; i++ {
		out, err := r.Model.Chat(ctx, messages, specs)
		if err != nil {
			return Result{}, fmt.Errorf("%s: model call: %w", d.Role, err)
		}
		res.TokensUsed += out.TokensUsed

		if len(out.ToolCalls) == 0 {
			return finish(res, out.Text, d.Role)
		}

		log.Debug("tool calls requested", "iteration", i+1, "count", len(out.ToolCalls))
		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   out.Text,
			ToolCalls: out.ToolCalls,
		})
		for _, call := range out.ToolCalls {
			res.ToolCalls++
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    r.invoke(ctx, log, d, call),
			})
		}
	}

	log.Info("tool budget exhausted, requesting final answer", "max_iterations", maxIter)
	messages = append(messages, providers.Message{
		Role:    providers.RoleUser,
		Content: "You have reached the tool usage limit. Do not call any more tools. Give your final answer now.",
	})
	out, err := r.Model.Chat(ctx, messages, specs)
	if err != nil {
		return Result{}, fmt.Errorf("%s: model call: %w", d.Role, err)
	}
	res.TokensUsed += out.TokensUsed
	return finish(res, out.Text, d.Role)
}

func finish(res Result, text, role string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%s: %w", role, ErrEmptyAnswer)
	}
	res.Text = text
	return res, nil
}

func (r *Runner) invoke(ctx context.Context, log *slog.Logger, d Descriptor, call providers.ToolCall) string {
	t, ok := d.Tool(call.Name)
	if !ok {
		err := fmt.Errorf("tool %q is not available", call.Name)
		r.reportTool(call.Name, err)
		log.Warn("unknown tool requested", "tool", call.Name)
		return "Error: " + err.Error()
	}
	out, err := t.Call(ctx, call.Input)
	r.reportTool(call.Name, err)
	if err != nil {
		log.Warn("tool call failed", "tool", call.Name, "error", err)
		return "Error: " + err.Error()
	}
	log.Debug("tool call succeeded", "tool", call.Name, "bytes", len(out))
	return out
}

func (r *Runner) reportTool(name string, err error) {
	if r.OnToolCall != nil {
		r.OnToolCall(name, err)
	}
}

// UserPrompt renders a task as the agent's user message.
func UserPrompt(task Task) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(task.Instruction))
	if task.ExpectedOutput != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer:\n")
		b.WriteString(strings.TrimSpace(task.ExpectedOutput))
		b.WriteString("\nYou MUST return the actual complete content as the final answer, not a summary.")
	}
	if len(task.Context) > 0 {
		b.WriteString("\n\nThis is the context you're working with:")
		for _, c := range task.Context {
			b.WriteString("\n\n### " + c.Title + "\n")
			b.WriteString(strings.TrimSpace(c.Output))
		}
	}
	return b.String()
}
