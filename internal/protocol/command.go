// Package protocol decodes inbound chat frames into typed commands and renders
// the pipe-delimited lines the server sends back to clients.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits the fields of a frame.
const Separator = "|"

// ErrMalformed is returned for frames that cannot be turned into a command:
// unknown verb, too few fields or an empty required field.
var ErrMalformed = errors.New("malformed frame")

// Verb is the first field of every frame.
type Verb string

const (
	VerbJoin        Verb = "JOIN"
	VerbMsg         Verb = "MSG"
	VerbPrivate     Verb = "PRIVATE"
	VerbPrivateFile Verb = "PRIVATE_FILE"
	VerbTyping      Verb = "TYPING"
	VerbFile        Verb = "FILE"
	VerbGetRooms    Verb = "GET_ROOMS"
	VerbDeleteRoom  Verb = "DELETE_ROOM"
)

// Command is one decoded inbound frame. The concrete type tells which verb it is.
type Command interface {
	Verb() Verb
}

// Join asks to enter Room as User. Avatar and Password are optional.
type Join struct {
	Room     string
	User     string
	Avatar   string
	Password string
}

// Msg posts Text to the sender's room.
type Msg struct {
	Text string
}

// Private sends Text to a single user.
type Private struct {
	Target string
	Text   string
}

// FileMeta carries the upload tuple exactly as the client sent it.
type FileMeta struct {
	URL  string
	Type string
	Name string
	Size string
}

// PrivateFile shares a file with a single user.
type PrivateFile struct {
	Target string
	File   FileMeta
}

// Typing announces that the sender is typing.
type Typing struct{}

// ShareFile posts a file to the sender's room.
type ShareFile struct {
	File FileMeta
}

// GetRooms requests the room list.
type GetRooms struct{}

// DeleteRoom evicts everybody from Room and forgets it.
type DeleteRoom struct {
	Room string
}

func (Join) Verb() Verb        { return VerbJoin }
func (Msg) Verb() Verb         { return VerbMsg }
func (Private) Verb() Verb     { return VerbPrivate }
func (PrivateFile) Verb() Verb { return VerbPrivateFile }
func (Typing) Verb() Verb      { return VerbTyping }
func (ShareFile) Verb() Verb   { return VerbFile }
func (GetRooms) Verb() Verb    { return VerbGetRooms }
func (DeleteRoom) Verb() Verb  { return VerbDeleteRoom }

// schema declares how many fields follow the verb. The last field absorbs any
// remaining separators so free text survives intact.
type schema struct {
	fields   int
	required int
	build    func(f []string) (Command, error)
}

var schemas = map[Verb]schema{
	VerbJoin: {fields: 4, required: 2, build: func(f []string) (Command, error) {
		if blank(f[0]) || blank(f[1]) {
			return nil, malformed(VerbJoin, "room and user are required")
		}
		return Join{Room: f[0], User: f[1], Avatar: f[2], Password: f[3]}, nil
	}},
	VerbMsg: {fields: 1, required: 1, build: func(f []string) (Command, error) {
		if blank(f[0]) {
			return nil, malformed(VerbMsg, "empty message")
		}
		return Msg{Text: f[0]}, nil
	}},
	VerbPrivate: {fields: 2, required: 2, build: func(f []string) (Command, error) {
		if blank(f[0]) {
			return nil, malformed(VerbPrivate, "target is required")
		}
		return Private{Target: f[0], Text: f[1]}, nil
	}},
	VerbPrivateFile: {fields: 5, required: 5, build: func(f []string) (Command, error) {
		if blank(f[0]) {
			return nil, malformed(VerbPrivateFile, "target is required")
		}
		return PrivateFile{Target: f[0], File: FileMeta{URL: f[1], Type: f[2], Name: f[3], Size: f[4]}}, nil
	}},
	VerbTyping: {build: func([]string) (Command, error) { return Typing{}, nil }},
	VerbFile: {fields: 4, required: 4, build: func(f []string) (Command, error) {
		return ShareFile{File: FileMeta{URL: f[0], Type: f[1], Name: f[2], Size: f[3]}}, nil
	}},
	VerbGetRooms: {build: func([]string) (Command, error) { return GetRooms{}, nil }},
	VerbDeleteRoom: {fields: 1, required: 1, build: func(f []string) (Command, error) {
		if blank(f[0]) {
			return nil, malformed(VerbDeleteRoom, "room is required")
		}
		return DeleteRoom{Room: f[0]}, nil
	}},
}

// Decode turns a raw text frame into a Command. Errors wrap ErrMalformed.
func Decode(frame string) (Command, error) {
	head, rest, hasRest := strings.Cut(frame, Separator)
	verb := Verb(head)
	s, ok := schemas[verb]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformed, head)
	}
	fields := make([]string, s.fields)
	if s.fields > 0 {
		var got []string
		if hasRest {
			got = strings.SplitN(rest, Separator, s.fields)
		}
		if len(got) < s.required {
			return nil, malformed(verb, fmt.Sprintf("expected %d fields, got %d", s.required, len(got)))
		}
		copy(fields, got)
	}
	return s.build(fields)
}

func malformed(v Verb, why string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, v, why)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
