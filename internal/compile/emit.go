package compile

import (
	"fmt"
	"os"
	"strings"

	"github.com/deagahelio/vm/internal/ast"
	"github.com/deagahelio/vm/internal/types"
)

// emitCtx threads the three pieces of lowering context down the recursive
// walk: r is the output register (the value lands in $r, its address in
// $r+1 for an L-value); statement permits the control-flow/declaration
// forms; root permits the top-level-only forms (§4.3).
type emitCtx struct {
	root      bool
	statement bool
	r         int
}

var arith = map[string]string{
	"+": "add", "-": "sub", "&": "and", "|": "or", "<<": "shl", ">>": "shr",
}

// compare maps the KL comparison operators to the ISA's rr compare
// mnemonics. clt/cgt are reused for both signed and unsigned operands; see
// DESIGN.md's note on why this TODO from the source is preserved rather
// than resolved with new opcodes.
var compare = map[string]string{
	"<": "clt", ">": "cgt", "<=": "cltq", ">=": "cgtq", "==": "ceq", "!=": "cnq",
}

var topOnly = map[string]bool{"fn": true, "struct": true, "static": true, "array": true, "import": true}

func (c *Compiler) emit(n *ast.Node, cx emitCtx) (types.Name, error) {
	if cx.root {
		if n.Kind != ast.List {
			return "", c.fail(n, "top-level expression must be list")
		}
		head := n.Head()
		if !topOnly[head] && head != "asm" && head != "@private" {
			return "", c.fail(n, "invalid top-level expression")
		}
	} else if n.Kind == ast.List && topOnly[n.Head()] {
		return "", c.fail(n, "expression must be top-level")
	}

	c.maybeComment(n)

	switch n.Kind {
	case ast.Int:
		c.emitLine("mov %d %s\n", n.IntVal, reg(cx.r))
		return types.Int, nil

	case ast.Word:
		return c.emitWord(n, cx)
	}

	if n.Len() == 0 {
		return "", c.fail(n, "empty list expression")
	}
	head := n.Head()
	if head == "" {
		return "", c.fail(n, "list expression must begin with a form name")
	}

	switch {
	case head == "@private":
		return c.emitPrivate(n, cx)
	case head == "import":
		return c.emitImport(n, cx)
	case head == "fn":
		return c.emitFn(n, cx)
	case head == "struct":
		return c.emitStruct(n, cx)
	case head == "static", head == "array":
		return c.emitStaticArray(n, cx)
	case head == "local":
		return c.emitLocal(n, cx)
	case head == "while":
		return c.emitWhile(n, cx)
	case head == "cond":
		return c.emitCond(n, cx)
	case head == "switch":
		return c.emitSwitch(n, cx)
	case head == "return":
		return c.emitReturn(n, cx)
	case arith[head] != "" || compare[head] != "" || head == "*" || head == "/" || head == "%":
		return c.emitBinary(n, cx)
	case head == "set-var":
		return c.emitSetVar(n, cx)
	case head == "set-8", head == "set-16", head == "set-32":
		return c.emitSetMem(n, cx)
	case head == "get-8", head == "get-16", head == "get-32":
		return c.emitGetMem(n, cx)
	case head == "get":
		return c.emitGetField(n, cx)
	case head == "set":
		return c.emitSetField(n, cx)
	case head == "cast":
		return c.emitCast(n, cx)
	case head == "addr":
		return c.emitAddr(n, cx)
	case head == "size":
		return c.emitSize(n, cx)
	case head == "elem-var":
		return c.emitElemVar(n, cx)
	case head == "elem-8", head == "elem-16", head == "elem-32":
		return c.emitElemMem(n, cx)
	case head == "len-var":
		return c.emitLenVar(n, cx)
	case head == "bool":
		return c.emitBool(n, cx)
	case head == "true", head == "false":
		return c.emitBoolLiteral(n, cx)
	case head == "asm":
		return c.emitAsm(n, cx)
	case head == "data":
		return c.emitData(n, cx)
	}

	if fn, ok := c.funcs[head]; ok {
		return c.emitCall(n, cx, fn)
	}
	return "", c.fail(n, "undefined function")
}

func (c *Compiler) emitPrivate(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	c.privatePending = true
	t, err := c.emit(n.At(1), cx)
	c.privatePending = false
	return t, err
}

// emitWord lowers a variable reference. A leading '&' requests the address
// rather than the value, a distillation of §4.3's "word" row that has no
// precedent in the original toolchain's generate_expression.
func (c *Compiler) emitWord(n *ast.Node, cx emitCtx) (types.Name, error) {
	name := n.WordVal
	addrOnly := false
	if strings.HasPrefix(name, "&") {
		addrOnly = true
		name = name[1:]
	}

	v, ok := c.scope.lookup(name)
	if !ok {
		return "", c.fail(n, "undefined variable")
	}

	target := cx.r + 1
	if addrOnly {
		target = cx.r
	}

	if v.Global {
		c.emitLine("mov #%s %s\n", name, reg(target))
	} else {
		c.emitLine("mov $12 %s\n", reg(target))
		if v.Offset < 0 {
			c.emitLine("sub %d %s\n", -v.Offset, reg(target))
		} else {
			c.emitLine("add %d %s\n", v.Offset, reg(target))
		}
	}

	if addrOnly {
		return types.Uint32, nil
	}
	c.emitLine("ld%c %s %s\n", types.Width(v.Type), reg(cx.r+1), reg(cx.r))
	return v.Type, nil
}

func (c *Compiler) emitImport(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	path := n.At(1)
	bytes, ok := path.Bytes()
	if !ok {
		return "", c.fail(n, "file name must be string or list of bytes")
	}
	if !c.definitionsMode {
		return "", nil
	}

	filename := strings.TrimRight(string(bytes), "\x00")
	src, err := readImport(filename)
	if err != nil {
		return "", c.fail(n, "cannot read import %q: %v", filename, err)
	}

	sub := New(filename, WithMode(c.Mode), WithReporter(c.Reporter), AsImportTarget())
	if err := sub.Compile(src); err != nil {
		return "", c.fail(n, "error compiling import %q: %v", filename, err)
	}

	for name, fn := range sub.Funcs() {
		if fn.Private {
			continue
		}
		c.funcs[name] = fn
		c.rawLine(".import #%s\n", name)
	}
	for name, v := range sub.Globals() {
		if v.Private {
			continue
		}
		c.scope.global()[name] = v
		c.rawLine(".import #%s\n", name)
	}
	return "", nil
}

// readImport is overridden in tests; production code reads the real
// filesystem.
var readImport = func(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Compiler) emitFn(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() < 4 {
		return "", c.fail(n, "wrong number of arguments")
	}
	retType := n.At(1)
	if retType.Kind != ast.Word || !types.Known(retType.WordVal) {
		return "", c.fail(n, "first argument must be type")
	}
	nameNode := n.At(2)
	if nameNode.Kind != ast.Word {
		return "", c.fail(n, "invalid function name")
	}
	params := n.At(3)
	if params.Kind != ast.List {
		return "", c.fail(n, "third argument must be parameter list")
	}
	name := nameNode.WordVal

	if c.definitionsMode {
		if _, exists := c.funcs[name]; exists {
			return "", c.fail(n, "cannot declare function twice")
		}
		argTypes := make([]types.Name, 0, params.Len())
		for i := 0; i < params.Len(); i++ {
			arg := params.At(i)
			if arg.Kind != ast.List || arg.Len() != 2 {
				return "", c.fail(n, "invalid parameter definition")
			}
			if arg.At(0).Kind != ast.Word || !types.Known(arg.At(0).WordVal) {
				return "", c.fail(n, "first argument must be type")
			}
			if arg.At(1).Kind != ast.Word {
				return "", c.fail(n, "invalid parameter name")
			}
			argTypes = append(argTypes, types.Name(arg.At(0).WordVal))
		}
		c.funcs[name] = &Function{
			Name:    name,
			Return:  types.Name(retType.WordVal),
			Args:    argTypes,
			Node:    n,
			Private: c.privatePending && c.Private,
		}
		return "", nil
	}

	c.spOffset = 0
	c.scope.push()
	argOffset := 8
	for i := 0; i < params.Len(); i++ {
		arg := params.At(i)
		c.scope.declare(arg.At(1).WordVal, &Variable{
			Offset: argOffset,
			Type:   types.Name(arg.At(0).WordVal),
			Length: 1,
			Node:   arg,
		})
		argOffset += 4
	}

	fn := c.funcs[name]
	if !fn.Private {
		c.emitLine(".export #%s\n", name)
	}
	c.emitLine("#%s:\npush $12\nmov $15 $12\n", name)
	for i := 4; i < n.Len(); i++ {
		if _, err := c.emit(n.At(i), emitCtx{statement: true, r: cx.r}); err != nil {
			return "", err
		}
	}
	c.emitLine("mov $12 $15\npop $12\nret\n")

	c.scope.pop()
	return "", nil
}

func (c *Compiler) emitStruct(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() < 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !c.definitionsMode {
		return "", nil
	}
	nameNode := n.At(1)
	if nameNode.Kind != ast.Word {
		return "", c.fail(n, "invalid struct name")
	}
	name := nameNode.WordVal
	if _, exists := c.structs[name]; exists {
		return "", c.fail(n, "cannot declare struct twice")
	}

	s := &Struct{Name: name}
	offset := 0
	for i := 2; i < n.Len(); i++ {
		field := n.At(i)
		if field.Kind != ast.List || field.Len() != 2 {
			return "", c.fail(n, "invalid struct field")
		}
		if field.At(0).Kind != ast.Word || !types.Known(field.At(0).WordVal) {
			return "", c.fail(n, "first argument must be type")
		}
		if field.At(1).Kind != ast.Word {
			return "", c.fail(n, "invalid field name")
		}
		ft := types.Name(field.At(0).WordVal)
		s.Fields = append(s.Fields, StructField{Name: field.At(1).WordVal, Type: ft, Offset: offset})
		offset += types.Size(ft)
	}
	s.Size = offset
	c.structs[name] = s
	return "", nil
}

func (c *Compiler) emitStaticArray(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 && n.Len() != 4 {
		return "", c.fail(n, "wrong number of arguments")
	}
	typeNode := n.At(1)
	if typeNode.Kind != ast.Word || !types.Known(typeNode.WordVal) {
		return "", c.fail(n, "first argument must be type")
	}
	nameNode := n.At(2)
	if nameNode.Kind != ast.Word {
		return "", c.fail(n, "invalid variable name")
	}
	t := types.Name(typeNode.WordVal)
	name := nameNode.WordVal

	var init *ast.Node
	if n.Len() == 4 {
		init = n.At(3)
		if init.Kind != ast.Int && init.Kind != ast.List {
			return "", c.fail(n, "static variable must be integer or array of integers")
		}
	}

	if c.definitionsMode {
		if _, exists := c.scope.global()[name]; exists {
			return "", c.fail(n, "cannot declare variable twice")
		}
		length := 1
		if init != nil && init.Kind == ast.List {
			length = init.Len()
		}
		c.scope.global()[name] = &Variable{
			Global:  true,
			Type:    t,
			Length:  length,
			Node:    n,
			Private: c.privatePending && c.Private,
		}
		return "", nil
	}

	export := !(c.privatePending && c.Private)
	if export {
		c.emitLine(".export #%s\n", name)
	}
	c.emitLine("#%s:\n", name)
	switch {
	case init == nil:
		c.emitLine(".%s 0\n", types.Directive(t))
	case init.Kind == ast.Int:
		c.emitLine(".%s %d\n", types.Directive(t), init.IntVal)
	default:
		for i := 0; i < init.Len(); i++ {
			el := init.At(i)
			if el.Kind != ast.Int {
				return "", c.fail(n, "array element must be integer literal")
			}
			c.emitLine(".%s %d\n", types.Directive(t), el.IntVal)
		}
	}
	return "", nil
}

func (c *Compiler) emitLocal(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 && n.Len() != 4 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !cx.statement {
		return "", c.fail(n, "local variable cannot be declared in expression")
	}
	typeNode := n.At(1)
	if typeNode.Kind != ast.Word || !types.Known(typeNode.WordVal) {
		return "", c.fail(n, "first argument must be type")
	}
	nameNode := n.At(2)
	if nameNode.Kind != ast.Word {
		return "", c.fail(n, "invalid variable name")
	}
	t := types.Name(typeNode.WordVal)
	name := nameNode.WordVal
	if _, exists := c.scope.top()[name]; exists {
		return "", c.fail(n, "cannot declare variable twice")
	}

	if n.Len() == 3 {
		c.emitLine("mov $0 %s\n", reg(cx.r))
	} else {
		initT, err := c.emit(n.At(3), emitCtx{r: cx.r})
		if err != nil {
			return "", err
		}
		if _, err := c.mergeOrFallback(n, t, initT); err != nil {
			return "", err
		}
	}
	c.emitLine("push %s\n", reg(cx.r))

	c.spOffset -= 4
	c.scope.declare(name, &Variable{Offset: c.spOffset, Type: t, Length: 1, Node: n})
	return "", nil
}

func (c *Compiler) emitWhile(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() == 1 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !cx.statement {
		return "", c.fail(n, "while loop cannot be used in expression")
	}
	id := n.ID()
	c.emitLine("#__while_%s:\n", id)
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("jfi #__while_%s_end\n", id)

	c.scope.push()
	for i := 2; i < n.Len(); i++ {
		if _, err := c.emit(n.At(i), emitCtx{statement: true, r: cx.r}); err != nil {
			return "", err
		}
	}
	if slots := c.scope.pop(); slots > 0 {
		for i := 0; i < slots; i++ {
			c.emitLine("pop $0\n")
		}
		c.spOffset += slots * 4
	}

	c.emitLine("ji #__while_%s\n#__while_%s_end:\n", id, id)
	return "", nil
}

// emitCond lowers `(cond c1 b1 c2 b2 ...)` with a single shared end label,
// matching the if/elif-chain reading of §4.3's table rather than the
// per-branch independent labels used elsewhere in this lineage of
// compilers (see DESIGN.md).
func (c *Compiler) emitCond(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() == 1 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !cx.statement {
		return "", c.fail(n, "cond statement cannot be used in expression")
	}
	id := n.ID()
	end := fmt.Sprintf("#__cond_%s_end", id)

	for i := 1; i < n.Len(); i++ {
		block := n.At(i)
		if block.Kind != ast.List || block.Len() == 0 {
			return "", c.fail(n, "cond branch cannot be empty")
		}
		if _, err := c.emit(block.At(0), emitCtx{r: cx.r}); err != nil {
			return "", err
		}
		next := fmt.Sprintf("#__cond_%s_%d", id, i)
		c.emitLine("jfi %s\n", next)

		c.scope.push()
		for j := 1; j < block.Len(); j++ {
			if _, err := c.emit(block.At(j), emitCtx{statement: true, r: cx.r}); err != nil {
				return "", err
			}
		}
		if slots := c.scope.pop(); slots > 0 {
			for k := 0; k < slots; k++ {
				c.emitLine("pop $0\n")
			}
			c.spOffset += slots * 4
		}
		c.emitLine("ji %s\n%s:\n", end, next)
	}
	c.emitLine("%s:\n", end)
	return "", nil
}

// emitSwitch lowers `(switch e c1 b1 c2 b2 ...)`: the switched value is
// pushed once and re-pushed between cases, since each comparison pops it
// to compare against a freshly evaluated case constant.
func (c *Compiler) emitSwitch(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() < 2 || n.Len()%2 != 0 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !cx.statement {
		return "", c.fail(n, "switch statement cannot be used in expression")
	}
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	id := n.ID()
	end := fmt.Sprintf("__switch_%s_end", id)

	c.emitLine("push %s\n", reg(cx.r))
	cases := (n.Len() - 2) / 2
	for i := 0; i < cases; i++ {
		caseConst := n.At(2 + i*2)
		body := n.At(3 + i*2)
		if body.Kind != ast.List {
			return "", c.fail(n, "switch body must be a list")
		}

		if _, err := c.emit(caseConst, emitCtx{r: cx.r}); err != nil {
			return "", err
		}
		c.emitLine("pop %s\nceq %s %s\n", reg(cx.r+1), reg(cx.r), reg(cx.r+1))
		next := fmt.Sprintf("__switch_%s_%d", id, i)
		c.emitLine("jfi #%s\n", next)

		c.scope.push()
		for j := 0; j < body.Len(); j++ {
			if _, err := c.emit(body.At(j), emitCtx{statement: true, r: cx.r}); err != nil {
				return "", err
			}
		}
		if slots := c.scope.pop(); slots > 0 {
			for k := 0; k < slots; k++ {
				c.emitLine("pop $0\n")
			}
			c.spOffset += slots * 4
		}
		c.emitLine("ji #%s\n#%s:\npush %s\n", end, next, reg(cx.r+1))
	}
	c.emitLine("pop $0\n#%s:\n", end)
	return "", nil
}

func (c *Compiler) emitReturn(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() > 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if !cx.statement {
		return "", c.fail(n, "return cannot be used in expression")
	}
	if n.Len() == 2 {
		if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
			return "", err
		}
		if cx.r != 1 {
			c.emitLine("mov %s $1\n", reg(cx.r))
		}
	}
	c.emitLine("mov $12 $15\npop $12\nret\n")
	return "", nil
}

func (c *Compiler) emitBinary(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	op := n.Head()
	typeR, err := c.emit(n.At(2), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("push %s\n", reg(cx.r))
	typeL, err := c.emit(n.At(1), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("pop %s\n", reg(cx.r+1))

	switch {
	case op == "*":
		c.emitLine("mul %s %s\nmov $13 %s\n", reg(cx.r+1), reg(cx.r), reg(cx.r))
	case op == "/":
		c.emitLine("div %s %s\nmov $14 %s\n", reg(cx.r+1), reg(cx.r), reg(cx.r))
	case op == "%":
		c.emitLine("div %s %s\nmov $13 %s\n", reg(cx.r+1), reg(cx.r), reg(cx.r))
	case compare[op] != "":
		c.emitLine("%s %s %s\n", compare[op], reg(cx.r), reg(cx.r+1))
	default:
		c.emitLine("%s %s %s\n", arith[op], reg(cx.r+1), reg(cx.r))
	}

	return c.mergeOrFallback(n, typeL, typeR)
}

func (c *Compiler) emitSetVar(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if n.At(1).Kind != ast.Word {
		return "", c.fail(n, "first argument must be variable name")
	}
	typeL, err := c.emit(n.At(1), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("push %s\n", reg(cx.r+1))
	typeR, err := c.emit(n.At(2), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("pop %s\nst%c %s %s\n", reg(cx.r+1), types.Width(typeL), reg(cx.r), reg(cx.r+1))

	if _, err := c.mergeOrFallback(n, typeL, typeR); err != nil {
		return "", err
	}
	return typeL, nil
}

func memWidth(head string) (byte, types.Name) {
	switch head[len(head)-2:] {
	case "-8":
		return 'b', types.Uint8
	case "16":
		return 'w', types.Uint16
	case "32":
		return 'd', types.Uint32
	}
	return 'd', types.Uint32
}

func (c *Compiler) emitSetMem(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	width, _ := memWidth(n.Head())
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("push %s\n", reg(cx.r))
	t, err := c.emit(n.At(2), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("pop %s\nst%c %s %s\n", reg(cx.r+1), width, reg(cx.r), reg(cx.r+1))
	return t, nil
}

func (c *Compiler) emitGetMem(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	width, resultType := memWidth(n.Head())
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("ld%c %s %s\n", width, reg(cx.r), reg(cx.r))
	return resultType, nil
}

// structField resolves the (struct-type field) pair used by `get`/`set`,
// the form §4.3 leaves ambiguous as dotted `struct.field` syntax; this
// toolchain spells it as two leading arguments instead (see DESIGN.md).
func (c *Compiler) structField(n *ast.Node) (*Struct, StructField, error) {
	if n.At(1).Kind != ast.Word {
		return nil, StructField{}, c.fail(n, "first argument must be struct name")
	}
	s, ok := c.structs[n.At(1).WordVal]
	if !ok {
		return nil, StructField{}, c.fail(n, "undefined struct")
	}
	if n.At(2).Kind != ast.Word {
		return nil, StructField{}, c.fail(n, "second argument must be field name")
	}
	field, ok := s.Field(n.At(2).WordVal)
	if !ok {
		return nil, StructField{}, c.fail(n, "undefined struct field")
	}
	return s, field, nil
}

func (c *Compiler) emitGetField(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 4 {
		return "", c.fail(n, "wrong number of arguments")
	}
	_, field, err := c.structField(n)
	if err != nil {
		return "", err
	}
	if _, err := c.emit(n.At(3), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("mov %s %s\n", reg(cx.r), reg(cx.r+1))
	if field.Offset != 0 {
		c.emitLine("add %d %s\n", field.Offset, reg(cx.r+1))
	}
	c.emitLine("ld%c %s %s\n", types.Width(field.Type), reg(cx.r+1), reg(cx.r))
	return field.Type, nil
}

func (c *Compiler) emitSetField(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 5 {
		return "", c.fail(n, "wrong number of arguments")
	}
	_, field, err := c.structField(n)
	if err != nil {
		return "", err
	}
	if _, err := c.emit(n.At(3), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("mov %s %s\n", reg(cx.r), reg(cx.r+1))
	if field.Offset != 0 {
		c.emitLine("add %d %s\n", field.Offset, reg(cx.r+1))
	}
	c.emitLine("push %s\n", reg(cx.r+1))
	typeV, err := c.emit(n.At(4), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("pop %s\nst%c %s %s\n", reg(cx.r+1), types.Width(field.Type), reg(cx.r), reg(cx.r+1))
	if _, err := c.mergeOrFallback(n, field.Type, typeV); err != nil {
		return "", err
	}
	return field.Type, nil
}

func (c *Compiler) emitCast(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if n.At(1).Kind != ast.Word || !types.Known(n.At(1).WordVal) {
		return "", c.fail(n, "first argument must be type")
	}
	if _, err := c.emit(n.At(2), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	return types.Name(n.At(1).WordVal), nil
}

func (c *Compiler) emitAddr(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("mov %s %s\n", reg(cx.r+1), reg(cx.r))
	return types.Uint32, nil
}

func (c *Compiler) emitSize(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	typeNode := n.At(1)
	var size int
	if typeNode.Kind == ast.Word && types.Known(typeNode.WordVal) {
		size = types.Size(types.Name(typeNode.WordVal))
	} else if typeNode.Kind == ast.Word {
		if s, ok := c.structs[typeNode.WordVal]; ok {
			size = s.Size
		} else {
			return "", c.fail(n, "unknown type")
		}
	} else {
		return "", c.fail(n, "first argument must be type")
	}
	c.emitLine("mov %d %s\n", size, reg(cx.r))
	return types.Uint32, nil
}

func (c *Compiler) emitElemVar(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if n.At(1).Kind != ast.Word {
		return "", c.fail(n, "first argument must be variable name")
	}
	typeL, err := c.emit(n.At(1), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("push %s\n", reg(cx.r+1))
	_, err = c.emit(n.At(2), emitCtx{r: cx.r})
	if err != nil {
		return "", err
	}
	c.emitLine("pop %s\n", reg(cx.r+1))
	if size := types.Size(typeL); size != 1 {
		c.emitLine("mul %d %s\nadd $13 %s\n", size, reg(cx.r), reg(cx.r+1))
	} else {
		c.emitLine("add %s %s\n", reg(cx.r), reg(cx.r+1))
	}
	c.emitLine("ld%c %s %s\n", types.Width(typeL), reg(cx.r+1), reg(cx.r))
	return typeL, nil
}

func (c *Compiler) emitElemMem(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	width, resultType := memWidth(n.Head())
	if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("push %s\n", reg(cx.r))
	if _, err := c.emit(n.At(2), emitCtx{r: cx.r}); err != nil {
		return "", err
	}
	c.emitLine("pop %s\n", reg(cx.r+1))
	if size := types.Size(resultType); size != 1 {
		c.emitLine("mul %d %s\n", size, reg(cx.r))
	}
	c.emitLine("add %s %s\nld%c %s %s\n", reg(cx.r), reg(cx.r+1), width, reg(cx.r+1), reg(cx.r))
	return resultType, nil
}

func (c *Compiler) emitLenVar(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if n.At(1).Kind != ast.Word {
		return "", c.fail(n, "first argument must be variable name")
	}
	v, ok := c.scope.global()[n.At(1).WordVal]
	if !ok {
		return "", c.fail(n, "undefined static variable")
	}
	c.emitLine("mov %d %s\n", v.Length, reg(cx.r))
	return types.Uint32, nil
}

func (c *Compiler) emitBool(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() > 2 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if n.Len() == 2 {
		if _, err := c.emit(n.At(1), emitCtx{r: cx.r}); err != nil {
			return "", err
		}
	}
	id := n.ID()
	c.emitLine("mov $0 %s\njfi #__bool_%s_1\nmov 1 %s\n#__bool_%s_1:\n", reg(cx.r), id, reg(cx.r), id)
	return types.Uint8, nil
}

func (c *Compiler) emitBoolLiteral(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Head() == "true" {
		c.emitLine("ceq $0 $0\n")
	} else {
		c.emitLine("cnq $0 $0\n")
	}
	return types.Uint8, nil
}

func (c *Compiler) emitAsm(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() == 1 {
		return "", c.fail(n, "wrong number of arguments")
	}
	if c.definitionsMode {
		return "", nil
	}
	for i := 1; i < n.Len(); i++ {
		arg := n.At(i)
		bytes, ok := arg.Bytes()
		if !ok {
			return "", c.fail(arg, "inline assembly must be string or list of bytes")
		}
		c.code.Write(bytes)
		c.code.WriteByte('\n')
	}
	return "", nil
}

func (c *Compiler) emitData(n *ast.Node, cx emitCtx) (types.Name, error) {
	if n.Len() != 3 {
		return "", c.fail(n, "wrong number of arguments")
	}
	typeNode := n.At(1)
	if typeNode.Kind != ast.Word || !types.Known(typeNode.WordVal) {
		return "", c.fail(n, "first argument must be type")
	}
	t := types.Name(typeNode.WordVal)
	value := n.At(2)
	id := n.ID()
	label := fmt.Sprintf("__data_%s", id)

	if c.definitionsMode {
		return t, nil
	}

	switch value.Kind {
	case ast.Int:
		fmt.Fprintf(&c.dataHeader, "#%s:\n.%s %d\n", label, types.Directive(t), value.IntVal)
	case ast.List:
		fmt.Fprintf(&c.dataHeader, "#%s:\n", label)
		for i := 0; i < value.Len(); i++ {
			el := value.At(i)
			if el.Kind != ast.Int {
				return "", c.fail(n, "invalid data type")
			}
			fmt.Fprintf(&c.dataHeader, ".%s %d\n", types.Directive(t), el.IntVal)
		}
	default:
		return "", c.fail(n, "invalid data type")
	}

	c.emitLine("mov #%s %s\nld%c %s %s\n", label, reg(cx.r+1), types.Width(t), reg(cx.r+1), reg(cx.r))
	return t, nil
}

func (c *Compiler) emitCall(n *ast.Node, cx emitCtx, fn *Function) (types.Name, error) {
	if n.Len()-1 != len(fn.Args) {
		return "", c.fail(n, "wrong number of arguments")
	}
	for i := n.Len() - 1; i >= 1; i-- {
		argType, err := c.emit(n.At(i), emitCtx{r: cx.r})
		if err != nil {
			return "", err
		}
		if _, err := c.mergeOrFallback(n, fn.Args[i-1], argType); err != nil {
			return "", err
		}
		c.emitLine("push %s\n", reg(cx.r))
	}
	c.emitLine("calli #%s\n", fn.Name)
	if cx.r != 1 {
		c.emitLine("mov $1 %s\n", reg(cx.r))
	}
	for range fn.Args {
		c.emitLine("pop $0\n")
	}
	return fn.Return, nil
}
