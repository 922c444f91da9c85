package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeState:   "state.schema.json",
	TypeEvent:   "event.schema.json",
	TypeCmd:     "cmd.schema.json",
	TypeControl: "control.schema.json",
	TypeAck:     "ack.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// Schema returns the compiled schema for a message type.
func Schema(msgType string) (*jsonschema.Schema, error) {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return nil, fmt.Errorf("no schema for message type %q", msgType)
	}
	return s, nil
}

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile(name)
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// ValidateInbound checks a client message against the schema for its type.
// Only HELLO, CMD and CONTROL are accepted from clients.
func ValidateInbound(raw []byte) (BaseMessage, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return BaseMessage{}, fmt.Errorf("bad json: %w", err)
	}
	base, err := DecodeBase(raw)
	if err != nil {
		return BaseMessage{}, err
	}
	switch base.Type {
	case TypeHello, TypeCmd, TypeControl:
	default:
		return base, fmt.Errorf("unexpected message type %q", base.Type)
	}
	if base.ProtocolVersion != Version {
		return base, fmt.Errorf("unsupported protocol_version %q", base.ProtocolVersion)
	}
	s, err := Schema(base.Type)
	if err != nil {
		return base, err
	}
	if err := s.Validate(doc); err != nil {
		return base, err
	}
	return base, nil
}
