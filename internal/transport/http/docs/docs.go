// Package docs registers the OpenAPI description served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/registration/message": {
            "post": {
                "description": "Applies the farmer's message to the registration conversation and returns the assistant reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Registration"],
                "summary": "Send one registration chat turn",
                "parameters": [
                    {"description": "Chat turn", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegistrationMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RegistrationMessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too Many Requests"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.TurnFailureResponse"}}
                }
            }
        },
        "/api/v1/registration/abandon": {
            "post": {
                "description": "Closes the conversation; closing an already closed one is a no-op.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Registration"],
                "summary": "Abandon a registration conversation",
                "parameters": [
                    {"description": "Session to close", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegistrationAbandonRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RegistrationMessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.TurnFailureResponse"}}
                }
            }
        },
        "/api/v1/webhooks/messaging": {
            "post": {
                "description": "Applies an inbound messaging delivery to the sender's registration. Twilio deliveries are answered with TwiML, WhatsApp Cloud API notifications with JSON.",
                "consumes": ["application/x-www-form-urlencoded", "application/json"],
                "produces": ["application/xml", "application/json"],
                "tags": ["Webhooks"],
                "summary": "Messaging webhook",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "description": "Returns the status and start time of the service.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Pings the farmer directory and the session store.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ReadyResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ReadyResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "trace_id": {"type": "string"}
            }
        },
        "handlers.RegistrationMessageRequest": {
            "type": "object",
            "properties": {
                "session_key": {"type": "string"},
                "text": {"type": "string"}
            }
        },
        "handlers.RegistrationAbandonRequest": {
            "type": "object",
            "required": ["session_key"],
            "properties": {
                "session_key": {"type": "string"}
            }
        },
        "handlers.RegistrationMessageResponse": {
            "type": "object",
            "properties": {
                "session_key": {"type": "string"},
                "reply_text": {"type": "string"},
                "completed": {"type": "boolean"},
                "returning": {"type": "boolean"},
                "status": {"type": "string"},
                "state": {"type": "string"},
                "locale": {"type": "string"},
                "collected_summary": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "handlers.TurnFailureResponse": {
            "type": "object",
            "properties": {
                "reply_text": {"type": "string"},
                "error": {"type": "string"},
                "trace_id": {"type": "string"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "started_at": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handlers.ReadyResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Farmer Onboarding API",
	Description:      "Conversational farmer registration over web chat and messaging webhooks.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
