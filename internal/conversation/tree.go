// Package conversation implements multi-turn dialogs as a tree of guarded steps.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencode-ai/botkit/internal/command"
)

// Construction and navigation errors.
var (
	ErrDuplicateStep  = errors.New("two different steps share a name")
	ErrIncompleteStep = errors.New("step is incomplete")
	ErrUnknownStep    = errors.New("unknown step")
	ErrJumpLoop       = errors.New("repeat steps jump in a loop")

	// ErrUnexpectedState means the step tree cannot follow an Advance reply.
	ErrUnexpectedState = errors.New("unexpected conversation state")
)

// maxJumps bounds chained repeat steps.
const maxJumps = 32

// Step is one node of a conversation. Steps are shared by every user; all
// per-user state lives in the context C.
type Step[C any] struct {
	// Name identifies the step within its tree.
	Name string

	// Guard decides whether Advance may enter this step. Nil always accepts.
	Guard func(c C) bool

	// Enter produces the prompt shown when the step is entered.
	Enter func(ctx context.Context, c C) (string, error)

	// Respond handles user input while this step is current.
	Respond func(ctx context.Context, c C, args command.Arguments) (Reply, error)

	// Children are tried in order by Advance.
	Children []*Step[C]

	// jump is set on repeat steps: entering the step moves to this step instead.
	jump string
}

// Repeat returns a step that, when entered, jumps to the step named to.
func Repeat[C any](name string, guard func(c C) bool, to string) *Step[C] {
	return &Step[C]{Name: name, Guard: guard, jump: to}
}

// node is the arena entry for a step. Relations are names, not pointers.
type node[C any] struct {
	step     *Step[C]
	parent   string
	children []string
}

// Tree is an immutable, validated step graph indexed by name.
type Tree[C any] struct {
	root  string
	nodes map[string]*node[C]
}

// NewTree indexes every step reachable from root. The same step may be
// reachable through several parents; two distinct steps with one name are
// rejected.
func NewTree[C any](root *Step[C]) (*Tree[C], error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrIncompleteStep)
	}
	t := &Tree[C]{root: root.Name, nodes: make(map[string]*node[C])}
	if err := t.add(root, ""); err != nil {
		return nil, err
	}

	queue := []*Step[C]{root}
	visited := map[*Step[C]]bool{root: true}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		n := t.nodes[s.Name]
		for _, child := range s.Children {
			if child == nil {
				return nil, fmt.Errorf("%w: nil child of %q", ErrIncompleteStep, s.Name)
			}
			if err := t.add(child, s.Name); err != nil {
				return nil, err
			}
			n.children = append(n.children, child.Name)
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}

	for name, n := range t.nodes {
		if n.step.jump == "" {
			continue
		}
		if _, ok := t.nodes[n.step.jump]; !ok {
			return nil, fmt.Errorf("%w: %q jumps to %q", ErrUnknownStep, name, n.step.jump)
		}
	}
	return t, nil
}

func (t *Tree[C]) add(s *Step[C], parent string) error {
	if s.Name == "" {
		return fmt.Errorf("%w: step without a name", ErrIncompleteStep)
	}
	if s.jump == "" && s.Respond == nil {
		return fmt.Errorf("%w: %q has no Respond handler", ErrIncompleteStep, s.Name)
	}
	if existing, ok := t.nodes[s.Name]; ok {
		if existing.step != s {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, s.Name)
		}
		return nil
	}
	t.nodes[s.Name] = &node[C]{step: s, parent: parent}
	return nil
}

// Root returns the name of the first step.
func (t *Tree[C]) Root() string {
	return t.root
}

// Names returns every step name.
func (t *Tree[C]) Names() []string {
	names := make([]string, 0, len(t.nodes))
	for name := range t.nodes {
		names = append(names, name)
	}
	return names
}

// Parent returns the name of the first parent step found for name.
func (t *Tree[C]) Parent(name string) (string, bool) {
	n, ok := t.nodes[name]
	if !ok || n.parent == "" {
		return "", false
	}
	return n.parent, true
}

// Children returns the child names of name in declared order.
func (t *Tree[C]) Children(name string) []string {
	n, ok := t.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}
