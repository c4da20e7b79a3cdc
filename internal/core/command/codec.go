package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

var decoders = map[Type]func([]byte) (Command, error){
	TypeUpdateCell:        decode[UpdateCell],
	TypeAddColumnsRows:    decode[AddColumnsRows],
	TypeRemoveColumnsRows: decode[RemoveColumnsRows],
	TypeResizeColumnsRows: decode[ResizeColumnsRows],
	TypeAddMerge:          decode[AddMerge],
	TypeRemoveMerge:       decode[RemoveMerge],
	TypeSortCells:         decode[SortCells],
	TypeSetFormatting:     decode[SetFormatting],
	TypeClearFormatting:   decode[ClearFormatting],
	TypeDeleteContent:     decode[DeleteContent],
	TypeCreateSheet:       decode[CreateSheet],
	TypeDeleteSheet:       decode[DeleteSheet],
	TypeCreateFigure:      decode[CreateFigure],
	TypeUpdateFigure:      decode[UpdateFigure],
	TypeDeleteFigure:      decode[DeleteFigure],
	TypeCreateChart:       decode[CreateChart],
	TypeUpdateChart:       decode[UpdateChart],
}

func decode[C Command](data []byte) (Command, error) {
	var c C
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal encodes a command as a JSON object with a leading "type" field.
func Marshal(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("command %s: unexpected encoding", cmd.Type())
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.WriteString(strconv.Quote(string(cmd.Type())))
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Unmarshal decodes a single command, dispatching on its "type" field.
func Unmarshal(data []byte) (Command, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	dec, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	return dec(data)
}

// List is an ordered batch of commands with a JSON representation.
type List []Command

func (l List) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(l))
	for i, cmd := range l {
		b, err := Marshal(cmd)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(raw)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(List, len(raw))
	for i, r := range raw {
		cmd, err := Unmarshal(r)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		out[i] = cmd
	}
	*l = out
	return nil
}
