package project

// Entry operator tokens.
const (
	opPlus     = "PLUS"
	opMinus    = "MINUS"
	opMulti    = "MULTI"
	opMod      = "MOD"
	opQuotient = "QUOTIENT"
	opFloor    = "floor"
	opGreater  = "GREATER"
	opGreaterE = "GREATER_OR_EQUAL"
	opLess     = "LESS"
	opAnd      = "AND"

	timerStart = "START"
	timerStop  = "STOP"
	timerReset = "RESET"
)

// scripts builds blocks, drawing one id per block in construction order.
type scripts struct {
	ids IDSource
}

func (s scripts) block(kind string, params ...any) Block {
	if params == nil {
		params = []any{}
	}
	return Block{
		ID:         s.ids.NewID(),
		Type:       kind,
		Params:     params,
		Statements: [][]Block{},
		Deletable:  1,
		Copyable:   true,
		Assemble:   true,
		Extensions: []any{},
	}
}

func (s scripts) nest(kind string, params []any, statements ...[]Block) Block {
	b := s.block(kind, params...)
	if len(statements) > 0 {
		b.Statements = statements
	}
	return b
}

func (s scripts) number(v float64) Block {
	return s.block("number", v)
}

func (s scripts) timer() Block {
	return s.block("get_project_timer_value")
}

func (s scripts) get(variable string) Block {
	return s.block("get_variable", variable)
}

func (s scripts) set(variable string, value Block) Block {
	return s.block("set_variable", variable, value)
}

func (s scripts) calc(left Block, op string, right Block) Block {
	return s.block("calc_basic", left, op, right)
}

func (s scripts) floor(value Block) Block {
	return s.block("calc_operation", nil, value, nil, opFloor)
}

func (s scripts) divmod(left Block, right Block, op string) Block {
	return s.block("quotient_and_mod", nil, left, nil, right, nil, op)
}

func (s scripts) compare(left Block, op string, right Block) Block {
	return s.block("boolean_basic_operator", left, op, right)
}

func (s scripts) and(left, right Block) Block {
	return s.block("boolean_and_or", left, opAnd, right)
}

func (s scripts) ifThen(cond Block, then ...Block) Block {
	return s.nest("_if", []any{cond}, then)
}

func (s scripts) ifElse(cond Block, then, otherwise []Block) Block {
	return s.nest("if_else", []any{cond, nil}, then, otherwise)
}

func (s scripts) forever(body ...Block) Block {
	return s.nest("repeat_inf", nil, body)
}

func (s scripts) timerAction(action string) Block {
	return s.block("choose_project_timer_action", nil, action)
}

// elapsedFrame is floor(timer * fps).
func (s scripts) elapsedFrame(fps float64) Block {
	return s.floor(s.calc(s.timer(), opMulti, s.number(fps)))
}

// finished is timer >= duration.
func (s scripts) finished(duration float64) Block {
	return s.compare(s.timer(), opGreaterE, s.number(duration))
}
