package remote

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidDocument wraps documents that fail their schema. Other clients
// write to the same store, so shape is checked before anything is cached.
var ErrInvalidDocument = errors.New("invalid chat document")

var (
	//go:embed schemas/room.schema.json
	roomSchemaSource string
	//go:embed schemas/message.schema.json
	messageSchemaSource string

	roomSchema    = jsonschema.MustCompileString("https://tripmate.app/schemas/room.schema.json", roomSchemaSource)
	messageSchema = jsonschema.MustCompileString("https://tripmate.app/schemas/message.schema.json", messageSchemaSource)
)

func decodeRoom(raw []byte) (Room, error) {
	var room Room
	err := decodeDocument(roomSchema, raw, &room)
	return room, err
}

func decodeMessage(raw []byte) (Message, error) {
	var message Message
	err := decodeDocument(messageSchema, raw, &message)
	return message, err
}

func decodeDocument(schema *jsonschema.Schema, raw []byte, target interface{}) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return json.Unmarshal(raw, target)
}
