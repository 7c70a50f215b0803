package scripting

import (
	"bytes"
	"fmt"

	"github.com/l1jgo/enginecore/internal/resource"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Script is a compiled behavior script. Compilation happens on a resource
// worker; the VM only instantiates the prototype.
type Script struct {
	Name  string
	Proto *lua.FunctionProto
}

// Compile parses and compiles Lua source.
func Compile(name string, src []byte) (*Script, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Script{Name: name, Proto: proto}, nil
}

// Decode is the resource decoder for .lua files.
func Decode(raw []byte) (resource.Payload, error) {
	s, err := Compile("script", raw)
	if err != nil {
		return nil, err
	}
	return s, nil
}
