package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/huddle/internal/chat"
)

type wsSchemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	commands map[string]*jsonschema.Schema
}

var wsSchemas wsSchemaRegistry

func initWSSchemas() error {
	wsSchemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("ws_envelope", wsEnvelopeSchema)
		if err != nil {
			wsSchemas.initErr = err
			return
		}
		wsSchemas.envelope = envelope

		commands := map[string]string{
			cmdAuthenticate:        wsAuthenticateSchema,
			cmdPing:                wsEmptySchema,
			cmdCreateGroup:         wsCreateGroupSchema,
			cmdGetGroupInfo:        wsGroupIDSchema,
			cmdUpdateGroupInfo:     wsUpdateGroupInfoSchema,
			cmdAddGroupMember:      wsGroupMemberSchema,
			cmdRemoveGroupMember:   wsGroupMemberSchema,
			cmdLeaveGroup:          wsGroupIDSchema,
			cmdDeleteGroup:         wsGroupIDSchema,
			cmdGetUserGroups:       wsEmptySchema,
			cmdSendGroupMessage:    wsSendGroupMessageSchema,
			cmdEditGroupMessage:    wsEditMessageSchema,
			cmdDeleteGroupMessage:  wsDeleteMessageSchema,
			cmdGetGroupMessages:    wsGetGroupMessagesSchema,
			cmdAddGroupReaction:    wsAddReactionSchema,
			cmdRemoveGroupReaction: wsMessageIDSchema,
			cmdSendDirectMessage:   wsSendDirectMessageSchema,
			cmdEditDirectMessage:   wsEditMessageSchema,
			cmdDeleteDirectMessage: wsDeleteMessageSchema,
			cmdGetDirectMessages:   wsGetDirectMessagesSchema,
			cmdBlockUser:           wsUserIDSchema,
			cmdUnblockUser:         wsUserIDSchema,
			cmdGetBlockedUsers:     wsEmptySchema,
		}

		wsSchemas.commands = make(map[string]*jsonschema.Schema, len(commands))
		for name, schema := range commands {
			compiled, err := jsonschema.CompileString("ws_command_"+name, schema)
			if err != nil {
				wsSchemas.initErr = err
				return
			}
			wsSchemas.commands[name] = compiled
		}
	})
	return wsSchemas.initErr
}

// validateWSCommand checks raw against the envelope schema and the schema of
// its command type. Failures are VALIDATION errors.
func validateWSCommand(raw []byte, commandType string) error {
	if err := initWSSchemas(); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return chat.Errorf(chat.CodeValidation, "malformed JSON")
	}
	if err := wsSchemas.envelope.Validate(payload); err != nil {
		return schemaError("command", err)
	}
	schema := wsSchemas.commands[commandType]
	if schema == nil {
		return chat.Errorf(chat.CodeValidation, "unknown command type %q", commandType)
	}
	if err := schema.Validate(payload); err != nil {
		return schemaError(commandType, err)
	}
	return nil
}

// schemaError reports the most specific failing location.
func schemaError(commandType string, err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return chat.Errorf(chat.CodeValidation, "invalid %s payload", commandType)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		return chat.Errorf(chat.CodeValidation, "invalid %s payload: %s", commandType, ve.Message)
	}
	return chat.Errorf(chat.CodeValidation, "invalid %s payload: %s: %s", commandType, field, ve.Message)
}

func supportedWSCommands() []string {
	if err := initWSSchemas(); err != nil {
		return nil
	}
	out := make([]string, 0, len(wsSchemas.commands))
	for name := range wsSchemas.commands {
		out = append(out, name)
	}
	return out
}

const wsEnvelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "requestId": { "type": "string", "maxLength": 128 }
  },
  "additionalProperties": true
}`

const wsEmptySchema = `{
  "type": "object",
  "additionalProperties": true
}`

const wsAuthenticateSchema = `{
  "type": "object",
  "required": ["token"],
  "properties": {
    "token": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsGroupIDSchema = `{
  "type": "object",
  "required": ["groupId"],
  "properties": {
    "groupId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsUserIDSchema = `{
  "type": "object",
  "required": ["userId"],
  "properties": {
    "userId": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": true
}`

const wsMessageIDSchema = `{
  "type": "object",
  "required": ["messageId"],
  "properties": {
    "messageId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsCreateGroupSchema = `{
  "type": "object",
  "required": ["groupName"],
  "properties": {
    "groupName": { "type": "string" },
    "groupDescription": { "type": "string" },
    "initialMembers": {
      "type": "array",
      "items": { "type": "integer", "minimum": 1 },
      "maxItems": 500
    }
  },
  "additionalProperties": true
}`

const wsUpdateGroupInfoSchema = `{
  "type": "object",
  "required": ["groupId", "updates"],
  "properties": {
    "groupId": { "type": "string", "minLength": 1 },
    "updates": {
      "type": "object",
      "minProperties": 1,
      "properties": {
        "groupName": { "type": "string" },
        "groupDescription": { "type": "string" }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": true
}`

const wsGroupMemberSchema = `{
  "type": "object",
  "required": ["groupId", "userId"],
  "properties": {
    "groupId": { "type": "string", "minLength": 1 },
    "userId": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": true
}`

const wsSendGroupMessageSchema = `{
  "type": "object",
  "required": ["groupId", "content"],
  "properties": {
    "groupId": { "type": "string", "minLength": 1 },
    "content": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsEditMessageSchema = `{
  "type": "object",
  "required": ["messageId", "newContent"],
  "properties": {
    "messageId": { "type": "string", "minLength": 1 },
    "newContent": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsDeleteMessageSchema = `{
  "type": "object",
  "required": ["messageId"],
  "properties": {
    "messageId": { "type": "string", "minLength": 1 },
    "deleteForEveryone": { "type": "boolean" }
  },
  "additionalProperties": true
}`

const wsGetGroupMessagesSchema = `{
  "type": "object",
  "required": ["groupId"],
  "properties": {
    "groupId": { "type": "string", "minLength": 1 },
    "limit": { "type": "integer", "minimum": 0 },
    "before": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsAddReactionSchema = `{
  "type": "object",
  "required": ["messageId", "reaction"],
  "properties": {
    "messageId": { "type": "string", "minLength": 1 },
    "reaction": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsSendDirectMessageSchema = `{
  "type": "object",
  "required": ["recipientId", "content"],
  "properties": {
    "recipientId": { "type": "integer", "minimum": 1 },
    "content": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsGetDirectMessagesSchema = `{
  "type": "object",
  "required": ["userId"],
  "properties": {
    "userId": { "type": "integer", "minimum": 1 },
    "limit": { "type": "integer", "minimum": 0 },
    "before": { "type": "string" }
  },
  "additionalProperties": true
}`
