package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencode-ai/botkit/internal/command"
)

// Action tells the engine what to do after a step replied.
type Action int

const (
	// Advance moves to the next step after sending the reply text.
	Advance Action = iota
	// Continue stays on the current step.
	Continue
	// End finishes the conversation.
	End
)

func (a Action) String() string {
	switch a {
	case Advance:
		return "advance"
	case Continue:
		return "continue"
	case End:
		return "end"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Reply is a step's answer to user input.
type Reply struct {
	Text   string
	Action Action
}

func AdvanceWith(text string) Reply  { return Reply{Text: text, Action: Advance} }
func ContinueWith(text string) Reply { return Reply{Text: text, Action: Continue} }
func EndWith(text string) Reply      { return Reply{Text: text, Action: End} }

// Code is the outcome of an attempt to move between steps.
type Code int

const (
	Success Code = iota
	EndOfSequence
	Failure
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case EndOfSequence:
		return "end_of_sequence"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Advancement carries the prompt of the entered step on Success.
type Advancement struct {
	Text string
	Code Code
}

// Sequence is one user's walk through a Tree.
type Sequence[C any] struct {
	tree *Tree[C]

	mu      sync.Mutex
	context C
	current string
}

// NewSequence starts a walk at the root of tree with context c.
func NewSequence[C any](tree *Tree[C], c C) *Sequence[C] {
	return &Sequence[C]{tree: tree, context: c, current: tree.root}
}

// Context returns the conversation context.
func (s *Sequence[C]) Context() C {
	return s.context
}

// Current returns the name of the current step.
func (s *Sequence[C]) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// EnterFirst enters the root step and returns its prompt.
func (s *Sequence[C]) EnterFirst(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter(ctx, s.tree.root, 0)
}

// Respond runs the current step's handler. It never changes the step.
func (s *Sequence[C]) Respond(ctx context.Context, args command.Arguments) (Reply, error) {
	s.mu.Lock()
	step := s.tree.nodes[s.current].step
	s.mu.Unlock()

	if step.Respond == nil {
		return Reply{}, fmt.Errorf("%w: %q cannot respond", ErrIncompleteStep, step.Name)
	}
	return step.Respond(ctx, s.context, args)
}

// Advance enters the first child whose guard accepts the context.
func (s *Sequence[C]) Advance(ctx context.Context) (Advancement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tree.nodes[s.current]
	if len(n.children) == 0 {
		return Advancement{Code: EndOfSequence}, nil
	}
	for _, name := range n.children {
		child := s.tree.nodes[name].step
		if child.Guard != nil && !child.Guard(s.context) {
			continue
		}
		text, err := s.enter(ctx, name, 0)
		if err != nil {
			return Advancement{}, err
		}
		return Advancement{Text: text, Code: Success}, nil
	}
	return Advancement{Code: Failure}, nil
}

// SetStep jumps to name without checking guards.
func (s *Sequence[C]) SetStep(ctx context.Context, name string) (Advancement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tree.nodes[name]; !ok {
		return Advancement{}, fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	text, err := s.enter(ctx, name, 0)
	if err != nil {
		return Advancement{}, err
	}
	return Advancement{Text: text, Code: Success}, nil
}

// enter makes name current and runs its Enter producer, following repeat jumps.
func (s *Sequence[C]) enter(ctx context.Context, name string, hops int) (string, error) {
	step := s.tree.nodes[name].step
	s.current = name
	if step.jump != "" {
		if hops >= maxJumps {
			return "", fmt.Errorf("%w: at %q", ErrJumpLoop, name)
		}
		return s.enter(ctx, step.jump, hops+1)
	}
	if step.Enter == nil {
		return "", nil
	}
	return step.Enter(ctx, s.context)
}
