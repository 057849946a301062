// Package api provides OpenAPI/Swagger documentation for the MeshFlow API.
//
// This package contains the wire types and related documentation for the
// MeshFlow HTTP API.
//
// # API Overview
//
// MeshFlow provides a RESTful API for:
//   - GLB to STL/OBJ model conversion (single, batch and WebSocket)
//   - Conversion history and statistics
//   - Requirements manifest validation
//   - Health monitoring and metrics
//
// # Authentication
//
// The configuration management endpoints require authentication via the
// X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8001
//
// # OpenAPI Specification
//
// When the server is built with swag-generated docs, the OpenAPI document
// is served at:
//
//	/swagger/doc.json
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/meshflow/main.go -o api --parseDependency --parseInternal
package api
