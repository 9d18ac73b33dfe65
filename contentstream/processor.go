package contentstream

// Processor tokenizes a stream, dispatches operators to the registered
// handlers and rebuilds the stream from their rewrites.
type Processor interface {
	Process(data []byte, state *GraphicsState) (Result, error)
	RegisterHandler(op string, h OperatorHandler)
}

type OperatorHandler interface {
	Handle(ec *ExecutionContext, operands []Operand) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(ec *ExecutionContext, operands []Operand) error

func (f HandlerFunc) Handle(ec *ExecutionContext, operands []Operand) error { return f(ec, operands) }

// Warning is a non-fatal problem at a byte offset of the stream.
type Warning struct {
	Offset int64
	Err    error
}

// Result is the outcome of processing one stream. Data aliases the input
// when nothing was rewritten.
type Result struct {
	Data     []byte
	Rewrites int
	Warnings []Warning
}

func (r Result) Changed() bool { return r.Rewrites > 0 }

// ExecutionContext is handed to handlers for the token being executed.
type ExecutionContext struct {
	State *GraphicsState

	src      []byte
	tok      Token
	index    int
	rewrites map[int]Rewrite
	warnings []Warning
}

// Token returns the operator token being handled.
func (ec *ExecutionContext) Token() Token { return ec.tok }

// Text returns the source bytes of an operand.
func (ec *ExecutionContext) Text(o Operand) string { return string(ec.src[o.Start:o.End]) }

// Rewrite replaces the current token in the output.
func (ec *ExecutionContext) Rewrite(rw Rewrite) { ec.rewrites[ec.index] = rw }

// Warn records a non-fatal problem at the current token.
func (ec *ExecutionContext) Warn(err error) {
	ec.warnings = append(ec.warnings, Warning{Offset: int64(ec.tok.Body), Err: err})
}

type simpleProcessor struct{ handlers map[string]OperatorHandler }

func NewProcessor() Processor { return &simpleProcessor{handlers: make(map[string]OperatorHandler)} }

func (p *simpleProcessor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

// Process runs the handlers over data. On a parse error or a handler
// error the result carries the original bytes and no rewrites.
func (p *simpleProcessor) Process(data []byte, state *GraphicsState) (Result, error) {
	tokens, err := Tokenize(data)
	if err != nil {
		return Result{Data: data}, err
	}
	if state == nil {
		state = NewGraphicsState()
	}
	ec := &ExecutionContext{State: state, src: data, rewrites: make(map[int]Rewrite)}
	for i, tok := range tokens {
		if tok.Kind != KindOperator {
			continue
		}
		h, ok := p.handlers[tok.Op]
		if !ok {
			continue
		}
		ec.tok, ec.index = tok, i
		if err := h.Handle(ec, tok.Operands); err != nil {
			return Result{Data: data}, err
		}
	}
	res := Result{Data: data, Rewrites: len(ec.rewrites), Warnings: ec.warnings}
	if res.Rewrites > 0 {
		res.Data = Rebuild(data, tokens, ec.rewrites)
	}
	return res, nil
}
