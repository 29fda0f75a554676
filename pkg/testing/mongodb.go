// Package testing starts disposable infrastructure for integration tests
package testing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	mongoclient "github.com/wms-platform/distribution-service/pkg/mongodb"
)

// MongoDBImage is the server version the service runs against
const MongoDBImage = "mongo:6"

// MongoDBContainer wraps a single-node replica set, so tests can use transactions
type MongoDBContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

// NewMongoDBContainer starts MongoDB with a replica set named "rs"
func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	container, err := mongodb.Run(ctx, MongoDBImage, mongodb.WithReplicaSet("rs"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{Container: container, URI: directURI(uri)}, nil
}

// Connect opens a service client on database
func (m *MongoDBContainer) Connect(ctx context.Context, database string) (*mongoclient.Client, error) {
	config := mongoclient.DefaultConfig()
	config.URI = m.URI
	config.Database = database
	config.ConnectTimeout = 30 * time.Second
	config.MinPoolSize = 0
	return mongoclient.NewClient(ctx, config)
}

// Close terminates the MongoDB container
func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container != nil {
		return m.Container.Terminate(ctx)
	}
	return nil
}

// directURI skips replica set discovery: the member advertises a
// container-internal host name the test process cannot resolve
func directURI(uri string) string {
	if strings.Contains(uri, "directConnection=") {
		return uri
	}
	if strings.Contains(uri, "?") {
		return uri + "&directConnection=true"
	}
	return strings.TrimSuffix(uri, "/") + "/?directConnection=true"
}
