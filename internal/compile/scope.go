package compile

import (
	"github.com/deagahelio/vm/internal/ast"
	"github.com/deagahelio/vm/internal/types"
)

// Variable is one binding: a global (label-addressed), a local (frame-base
// relative), or a function argument (also frame-base relative, positive
// offset). Matches §3's variable record.
type Variable struct {
	Global  bool
	Offset  int // byte displacement from $12 for locals/args; unused for globals
	Type    types.Name
	Length  int // 1 for scalars, element count for statically sized arrays
	Node    *ast.Node
	Private bool // suppressed from import when compiled as an import target
}

// Frame is one scope level: the module/global scope (frame 0) or a nested
// frame pushed for a function body or a loop/conditional that introduces
// bindings.
type Frame map[string]*Variable

// Scope is an ordered stack of frames. Lookup walks frames
// most-recently-pushed first, per §3.
type Scope struct {
	frames []Frame
}

func newScope() *Scope {
	return &Scope{frames: []Frame{{}}}
}

func (s *Scope) push() {
	s.frames = append(s.frames, Frame{})
}

// pop removes the innermost frame and returns how many 4-byte slots it
// held, so callers (while/cond/switch) can emit the matching `pop $0`s and
// roll c.spOffset back by slots*4 — leaving it unchanged across the whole
// statement, per Testable Property #3.
func (s *Scope) pop() int {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return len(top)
}

func (s *Scope) top() Frame { return s.frames[len(s.frames)-1] }

func (s *Scope) global() Frame { return s.frames[0] }

// lookup walks frames innermost-first and returns the binding for name.
func (s *Scope) lookup(name string) (*Variable, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *Scope) declare(name string, v *Variable) {
	s.top()[name] = v
}
