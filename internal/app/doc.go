// Package app provides the composition layer of the voice metrics service.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct and service wiring
//	├── domain/trial/       # Trial model, enumerations and validation
//	├── storage/            # TrialStore interface and shared SQL
//	│   ├── memory/         # In-memory implementation for tests and local use
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── sqlite/         # Single-file SQLite implementation
//	├── services/trials/    # Trial writes and statistics
//	├── httpapi/            # HTTP handlers and routing
//	├── metrics/            # Prometheus collectors
//	└── runtime/            # Process wiring and HTTP server lifecycle
//
// # Dependency Direction
//
//	cmd/appserver/
//	      │
//	      ▼
//	internal/app/runtime
//	      │
//	      ├──► internal/app/httpapi ──► internal/app (composition)
//	      │                                   │
//	      │                                   └──► services/trials ──► storage
//	      │
//	      └──► internal/platform/migrations
package app
