package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"pricewatch/pkg/models"
)

// Evaluator compiles boolean filter expressions over normalized events.
// Available variables: subject_key, event_type, event_time, message_id and
// payload (the raw decoded body).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject_key", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("event_time", cel.TimestampType),
		cel.Variable("message_id", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// Filter is a compiled boolean expression, safe for concurrent use.
type Filter struct {
	Expression string
	program    cel.Program
}

// CompileFilter checks that expression is boolean and prepares it.
func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{Expression: expression, program: program}, nil
}

// Match evaluates the filter against event. Missing payload keys are
// evaluation errors, so expressions should guard with has().
func (f *Filter) Match(ctx context.Context, event *models.NormalizedEvent) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, Activation(event))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// EvaluateFilter compiles and evaluates expression in one step.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, event *models.NormalizedEvent) (bool, error) {
	f, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return f.Match(ctx, event)
}

func Activation(event *models.NormalizedEvent) map[string]interface{} {
	payload := event.Raw
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return map[string]interface{}{
		"subject_key": event.SubjectKey,
		"event_type":  event.EventType,
		"event_time":  event.EventTime,
		"message_id":  event.MessageID,
		"payload":     payload,
	}
}
