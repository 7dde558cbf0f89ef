package core

import (
	"context"
	"fmt"
	"os"

	"docucore/internal/infra/persistence/dynamo"
	"docucore/internal/infra/persistence/memory"
	"docucore/pkg/domain"
)

// OpenStore selects a document store backend using environment variables.
// Defaults to the in-memory backend when unset.
//
//	DOCUCORE_STORAGE_DRIVER: memory|dynamo (default memory)
//	DOCUCORE_DYNAMO_TABLE: table name when driver=dynamo (required)
//	DOCUCORE_DYNAMO_REGION: AWS region (default us-east-1)
//	DOCUCORE_DYNAMO_ENDPOINT: alternate endpoint for local emulation
func OpenStore(ctx context.Context) (domain.Store, error) {
	driver := os.Getenv("DOCUCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(domain.DriverMemory)
	}
	switch domain.Driver(driver) {
	case domain.DriverMemory:
		return memory.NewStore(), nil
	case domain.DriverDynamo:
		return dynamo.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
