package validation

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// candidateSchema declares the shape a narrator response must have
// before any of it is trusted. Field bounds that depend on session
// state (pool maxima, known ids) are checked separately.
const candidateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["narration"],
  "properties": {
    "narration": {"type": "string", "minLength": 1},
    "delta": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "actor": {"type": "string"},
        "narration": {"type": "string"},
        "characters": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "hit_points": {"type": "integer", "minimum": 0},
              "pools": {
                "type": "object",
                "additionalProperties": {"type": "integer", "minimum": 0}
              },
              "set_flags": {"type": "array", "items": {"type": "string"}},
              "clear_flags": {"type": "array", "items": {"type": "string"}}
            }
          }
        },
        "combatants": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id"],
            "additionalProperties": false,
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "damage": {"type": "integer", "minimum": 0},
              "heal": {"type": "integer", "minimum": 0}
            }
          }
        },
        "quests": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "event"],
            "additionalProperties": false,
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "event": {"enum": ["activate", "reject", "complete", "cancel", "remove"]}
            }
          }
        },
        "new_quests": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "title"],
            "additionalProperties": false,
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "title": {"type": "string", "minLength": 1},
              "description": {"type": "string"},
              "status": {"enum": ["not-started", "available"]},
              "side_quests": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["id", "title"],
                  "properties": {
                    "id": {"type": "string", "minLength": 1},
                    "title": {"type": "string", "minLength": 1},
                    "description": {"type": "string"},
                    "status": {"enum": ["not-started", "available"]}
                  }
                }
              }
            }
          }
        },
        "cleanup_quests": {"type": "boolean"},
        "new_containers": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "name"],
            "additionalProperties": false,
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "name": {"type": "string", "minLength": 1},
              "items": {"type": "array", "items": {"type": "string"}}
            }
          }
        },
        "retrievals": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["character", "container", "item"],
            "additionalProperties": false,
            "properties": {
              "character": {"type": "string", "minLength": 1},
              "container": {"type": "string", "minLength": 1},
              "item": {"type": "string", "minLength": 1}
            }
          }
        },
        "start_encounter": {
          "type": "object",
          "required": ["name", "npcs"],
          "additionalProperties": false,
          "properties": {
            "name": {"type": "string", "minLength": 1},
            "npcs": {
              "type": "array",
              "minItems": 1,
              "items": {
                "type": "object",
                "required": ["name", "max_hp"],
                "additionalProperties": false,
                "properties": {
                  "name": {"type": "string", "minLength": 1},
                  "max_hp": {"type": "integer", "minimum": 1},
                  "initiative_mod": {"type": "integer"}
                }
              }
            }
          }
        },
        "end_encounter": {"type": "boolean"}
      }
    }
  }
}`

// compiledSchema is built once at startup; the schema text is static
var compiledSchema = jsonschema.MustCompileString("candidate.json", candidateSchema)
