package asm

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pc "github.com/prataprc/goparsec"
)

// Top-level AST object; every combinator below hangs off this one instance,
// per the goparsec idiom of building the tree incrementally as the grammar
// matches (mirrors the nand2tetris assembler's `var ast = pc.NewAST(...)`).
var ast = pc.NewAST("klasm", 0)

var (
	pProgram = ast.ManyUntil("program", nil,
		ast.OrdChoice("item", nil, pComment, pPragma, pLabelDecl, pInstruction), pc.End())

	pComment = ast.And("comment", nil, pc.Atom(";", ";"), pc.Token(`(?m).*$`, "COMMENT"))

	pLabelDecl = ast.And("label-decl", nil, pSymbol, pc.Atom(":", ":"))

	pPragma = ast.OrdChoice("pragma", nil, pExport, pImport, pDefine, pData)
	pExport = ast.And("export", nil, pc.Atom(".export", ".export"), pSymbol)
	pImport = ast.And("import", nil, pc.Atom(".import", ".import"), pSymbol)
	pDefine = ast.And("define", nil, pc.Atom(".define", ".define"), pSymbol, pOperand)
	pData   = ast.And("data", nil, pWidth, pOperand, ast.Maybe("maybe-count", nil, pc.Int()))
	pWidth  = ast.OrdChoice("width", nil,
		pc.Atom(".dword", ".dword"), pc.Atom(".word", ".word"), pc.Atom(".byte", ".byte"))

	pInstruction = ast.And("instruction", nil, pMnemonic,
		ast.Maybe("maybe-op1", nil, pOperand),
		ast.Maybe("maybe-op2", nil, pOperand))

	pMnemonic = pc.Token(`[a-z][a-zA-Z0-9]*`, "MNEMONIC")

	pOperand  = ast.OrdChoice("operand", nil, pRegister, pSymbol, pChar, pInteger)
	pRegister = pc.Token(`\$([0-9]|1[0-5])\b`, "REGISTER")
	pSymbol   = pc.Token(`#[A-Za-z_][A-Za-z0-9_]*`, "SYMBOL")
	pChar     = pc.Token(`'.'`, "CHAR")
	pInteger  = pc.Token(`0[xX][0-9a-fA-F]+|0[bB][01]+|0[oO][0-7]+|-?[0-9]+`, "INT")
)

// Parser drives the two-phase goparsec pipeline: source text to AST, AST to
// the flat []Line directive stream the encoder consumes.
type Parser struct{ reader io.Reader }

func NewParser(r io.Reader) Parser { return Parser{reader: r} }

func (p *Parser) Parse() ([]Line, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read assembly source: %w", err)
	}
	root, ok := p.FromSource(content)
	if !ok {
		return nil, fmt.Errorf("failed to parse assembly source")
	}
	return p.FromAST(root)
}

func (p *Parser) FromSource(source []byte) (pc.Queryable, bool) {
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}
	root, _ := ast.Parsewith(pProgram, pc.NewScanner(source))
	return root, root != nil
}

// FromAST walks the "program" node's children (source order, per §4.5's
// "flat tree whose direct children are the directives/instructions in
// source order") converting each into a Line.
func (p *Parser) FromAST(root pc.Queryable) ([]Line, error) {
	if root == nil || root.GetName() != "program" {
		return nil, fmt.Errorf("expected node 'program'")
	}
	var lines []Line
	for _, child := range root.GetChildren() {
		switch child.GetName() {
		case "comment":
			continue
		case "label-decl":
			sym := child.GetChildren()[0]
			lines = append(lines, LabelDecl{Name: strings.TrimPrefix(sym.GetValue().(string), "#")})
		case "export":
			lines = append(lines, Pragma{Kind: PragmaExport, Name: symbolName(child.GetChildren()[1])})
		case "import":
			lines = append(lines, Pragma{Kind: PragmaImport, Name: symbolName(child.GetChildren()[1])})
		case "define":
			name := symbolName(child.GetChildren()[1])
			op, err := toOperand(child.GetChildren()[2])
			if err != nil {
				return nil, err
			}
			if op.Kind != OperandImmediate {
				return nil, fmt.Errorf(".define %s: value must be a literal", name)
			}
			lines = append(lines, Pragma{Kind: PragmaDefine, Name: name, Value: op.Value})
		case "data":
			width := byte(0)
			switch child.GetChildren()[0].GetValue().(string) {
			case ".byte":
				width = 'b'
			case ".word":
				width = 'w'
			case ".dword":
				width = 'd'
			}
			val, err := toOperand(child.GetChildren()[1])
			if err != nil {
				return nil, err
			}
			count := 1
			if rest := child.GetChildren()[2:]; len(rest) > 0 {
				n, err := strconv.Atoi(rest[0].GetValue().(string))
				if err != nil {
					return nil, fmt.Errorf("malformed repeat count: %w", err)
				}
				count = n
			}
			lines = append(lines, DataDirective{Width: width, Value: val, Count: count})
		case "instruction":
			kids := child.GetChildren()
			mnemonic := kids[0].GetValue().(string)
			instr := Instr{Mnemonic: mnemonic}
			for _, opNode := range kids[1:] {
				if len(opNode.GetChildren()) == 0 {
					continue // unmatched Maybe
				}
				op, err := toOperand(opNode.GetChildren()[0])
				if err != nil {
					return nil, err
				}
				instr.Operands = append(instr.Operands, op)
			}
			lines = append(lines, instr)
		default:
			return nil, fmt.Errorf("unrecognized node %q", child.GetName())
		}
	}
	return lines, nil
}

func symbolName(n pc.Queryable) string {
	return strings.TrimPrefix(n.GetValue().(string), "#")
}

// toOperand converts an "operand" node's single matched child (register,
// symbol, char, or int) into an Operand.
func toOperand(n pc.Queryable) (Operand, error) {
	if n.GetName() == "operand" {
		n = n.GetChildren()[0]
	}
	text, _ := n.GetValue().(string)
	switch n.GetName() {
	case "REGISTER":
		r, err := strconv.Atoi(text[1:])
		if err != nil {
			return Operand{}, fmt.Errorf("malformed register %q", text)
		}
		return Operand{Kind: OperandRegister, Reg: r}, nil
	case "SYMBOL":
		return Operand{Kind: OperandSymbol, Symbol: strings.TrimPrefix(text, "#")}, nil
	case "CHAR":
		return Operand{Kind: OperandImmediate, Value: int32(text[1])}, nil
	case "INT":
		v, err := parseInt(text)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: OperandImmediate, Value: v}, nil
	default:
		return Operand{}, fmt.Errorf("unrecognized operand node %q", n.GetName())
	}
}

func parseInt(text string) (int32, error) {
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed immediate %q: %w", text, err)
	}
	return int32(v), nil
}
