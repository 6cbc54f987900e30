// Package identity holds the OpenAPI description served at /swagger/.
package identity

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/selfie"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/register": {
            "post": {
                "tags": [
                    "Account"
                ],
                "summary": "Register an account",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Email and passphrase",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.RegisterRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "The new account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.UserResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed or passphrase too weak",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "409": {
                        "description": "Email already registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "502": {
                        "description": "Account created but the email could not be sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/login": {
            "post": {
                "tags": [
                    "Account"
                ],
                "summary": "Log in",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.LoginRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Token pair",
                        "schema": {
                            "$ref": "#/definitions/authsdk.TokenResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Invalid credentials or missing TOTP code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "429": {
                        "description": "Account locked after repeated failures",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/token/refresh": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Account"
                ],
                "summary": "Refresh tokens",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "Token pair",
                        "schema": {
                            "$ref": "#/definitions/authsdk.TokenResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid refresh token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/me": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Account"
                ],
                "summary": "Current account",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "The account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.UserResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid access token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "404": {
                        "description": "Account no longer exists",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/verify-email": {
            "get": {
                "tags": [
                    "Verification"
                ],
                "summary": "Verify email",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Verification token from the email link",
                        "name": "token",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Email verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Missing token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Unknown or used token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/verify-email/resend": {
            "post": {
                "tags": [
                    "Verification"
                ],
                "summary": "Resend verification email",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Account email",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.EmailRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Verification email sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "404": {
                        "description": "Unknown email",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "502": {
                        "description": "Email could not be sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/password-reset": {
            "post": {
                "tags": [
                    "Recovery"
                ],
                "summary": "Request a password reset",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Account email",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.EmailRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Reset email sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Email not verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "404": {
                        "description": "Unknown email",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "502": {
                        "description": "Email could not be sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/password-reset/confirm": {
            "post": {
                "tags": [
                    "Recovery"
                ],
                "summary": "Complete a password reset",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Token and new passphrase",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.PasswordResetConfirmRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Passphrase updated",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed or passphrase too weak",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Unknown or expired token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/2fa/setup": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Two-Factor"
                ],
                "summary": "Start TOTP setup",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "Secret and otpauth:// URI",
                        "schema": {
                            "$ref": "#/definitions/authsdk.TOTPSetupResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid access token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "409": {
                        "description": "2FA already enabled or setup already pending",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/2fa/enable": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Two-Factor"
                ],
                "summary": "Enable TOTP",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Current TOTP code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.TOTPCodeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "2FA enabled",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed or no pending setup",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Wrong code or invalid access token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "409": {
                        "description": "2FA already enabled",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/v1/2fa/disable": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Two-Factor"
                ],
                "summary": "Disable TOTP",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Current TOTP code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.TOTPCodeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "2FA disabled",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MessageResponse"
                        }
                    },
                    "400": {
                        "description": "Validation failed or 2FA not enabled",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    },
                    "401": {
                        "description": "Wrong code or invalid access token",
                        "schema": {
                            "$ref": "#/definitions/authsdk.APIError"
                        }
                    }
                }
            }
        },
        "/.well-known/jwks.json": {
            "get": {
                "tags": [
                    "well-known"
                ],
                "summary": "Get JWKS",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "The JSON Web Key Set",
                        "schema": {
                            "$ref": "#/definitions/authsdk.JWKSResponse"
                        }
                    }
                }
            }
        },
        "/livez": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Health Check Endpoint",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "status, uptime, version",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                }
            }
        },
        "/readyz": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Readiness Check Endpoint",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "status, uptime, version, checks",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "service not ready",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "authsdk.APIError": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "error_description": {
                    "type": "string"
                },
                "details": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                }
            }
        },
        "authsdk.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "passphrase": {
                    "type": "string"
                }
            }
        },
        "authsdk.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "passphrase": {
                    "type": "string"
                },
                "totp_code": {
                    "type": "string"
                }
            }
        },
        "authsdk.EmailRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                }
            }
        },
        "authsdk.PasswordResetConfirmRequest": {
            "type": "object",
            "properties": {
                "token": {
                    "type": "string"
                },
                "new_passphrase": {
                    "type": "string"
                }
            }
        },
        "authsdk.UserResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "email_verified": {
                    "type": "boolean"
                },
                "status": {
                    "type": "string"
                },
                "totp_enabled": {
                    "type": "boolean"
                },
                "created_at": {
                    "type": "string"
                },
                "last_login": {
                    "type": "string"
                }
            }
        },
        "authsdk.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                }
            }
        },
        "authsdk.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {
                    "type": "string"
                },
                "refresh_token": {
                    "type": "string"
                },
                "token_type": {
                    "type": "string"
                },
                "expires_in": {
                    "type": "integer"
                }
            }
        },
        "authsdk.TOTPSetupResponse": {
            "type": "object",
            "properties": {
                "secret": {
                    "type": "string"
                },
                "provisioning_uri": {
                    "type": "string"
                }
            }
        },
        "authsdk.TOTPCodeRequest": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "store": {
                    "type": "string"
                },
                "signer": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "uptime": {
                    "type": "string"
                },
                "version": {
                    "type": "string"
                },
                "checks": {
                    "$ref": "#/definitions/authsdk.HealthChecks"
                }
            }
        },
        "authsdk.JWKSResponse": {
            "type": "object",
            "properties": {
                "keys": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/jwtx.JWK"
                    }
                }
            }
        },
        "jwtx.JWK": {
            "type": "object",
            "properties": {
                "kty": {
                    "type": "string"
                },
                "use": {
                    "type": "string"
                },
                "alg": {
                    "type": "string"
                },
                "kid": {
                    "type": "string"
                },
                "crv": {
                    "type": "string"
                },
                "x": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Selfie Identity Service API",
	Description:      "Account registration, login with optional TOTP second factor, email verification and password recovery.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
