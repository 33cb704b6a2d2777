package tac

import "github.com/segmentio/encoding/json"

type jsonOperand struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
}

type jsonInstr struct {
	Op     string       `json:"op"`
	Arg1   *jsonOperand `json:"arg1,omitempty"`
	Arg2   *jsonOperand `json:"arg2,omitempty"`
	Result *jsonOperand `json:"result,omitempty"`
	Label  string       `json:"label,omitempty"`
	Line   int          `json:"line,omitempty"`
	Text   string       `json:"text"`
}

type jsonVar struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonFunc struct {
	Name   string    `json:"name"`
	Params []jsonVar `json:"params"`
	Result string    `json:"result"`
	Start  int       `json:"start"`
	End    int       `json:"end"`
}

type jsonProgram struct {
	Instructions []jsonInstr `json:"instructions"`
	Functions    []jsonFunc  `json:"functions"`
}

func operandJSON(o Operand) *jsonOperand {
	if o.IsNone() {
		return nil
	}
	j := &jsonOperand{Kind: o.Kind.String(), Text: o.Text}
	if o.Type != 0 {
		j.Type = o.Type.String()
	}
	return j
}

// MarshalJSON 供工具消费的机器可读形式
func (p *Program) MarshalJSON() ([]byte, error) {
	out := jsonProgram{
		Instructions: make([]jsonInstr, 0, len(p.Instrs)),
		Functions:    make([]jsonFunc, 0, len(p.Funcs)),
	}
	for _, in := range p.Instrs {
		out.Instructions = append(out.Instructions, jsonInstr{
			Op:     in.Op.String(),
			Arg1:   operandJSON(in.Arg1),
			Arg2:   operandJSON(in.Arg2),
			Result: operandJSON(in.Result),
			Label:  in.Label,
			Line:   in.Line,
			Text:   in.String(),
		})
	}
	for _, f := range p.Funcs {
		jf := jsonFunc{Name: f.Name, Result: f.Result.String(), Start: f.Start, End: f.End, Params: []jsonVar{}}
		for _, v := range f.Params {
			jf.Params = append(jf.Params, jsonVar{Name: v.Name, Type: v.Type.String()})
		}
		out.Functions = append(out.Functions, jf)
	}
	return json.Marshal(out)
}
