package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/tournament-engine/db"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"go.mongodb.org/mongo-driver/mongo"
)

// DatabasePlaceholder is replaced with the tenant's DBName in DSN templates.
const DatabasePlaceholder = "{db}"

type sqlHandle struct {
	db    *sql.DB
	repos *repositories.Set
}

func (h *sqlHandle) Repos() *repositories.Set { return h.repos }

func (h *sqlHandle) Close(context.Context) error { return h.db.Close() }

// PostgresConnector opens one database per tenant and applies the tenant
// schema on connect.
type PostgresConnector struct {
	DSNTemplate    string
	ConnectTimeout time.Duration
}

func (c PostgresConnector) Open(ctx context.Context, tenant *models.Tenant) (Handle, error) {
	dsn := strings.ReplaceAll(c.DSNTemplate, DatabasePlaceholder, tenant.DBName)
	conn, err := db.Connect(dsn, c.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if err := repositories.ApplyTenantSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &sqlHandle{db: conn, repos: repositories.NewPostgresSet(conn)}, nil
}

type mongoHandle struct {
	repos *repositories.Set
}

func (h *mongoHandle) Repos() *repositories.Set { return h.repos }

// Close is a no-op: the client is shared by every tenant and closed at exit.
func (h *mongoHandle) Close(context.Context) error { return nil }

// MongoConnector maps each tenant onto its own database of a shared client.
type MongoConnector struct {
	Client *mongo.Client
}

func (c MongoConnector) Open(ctx context.Context, tenant *models.Tenant) (Handle, error) {
	database := c.Client.Database(tenant.DBName)
	if err := repositories.EnsureMongoIndexes(ctx, database); err != nil {
		return nil, fmt.Errorf("preparing mongo database %s: %w", tenant.DBName, err)
	}
	return &mongoHandle{repos: repositories.NewMongoSet(database)}, nil
}

type memoryHandle struct {
	repos *repositories.Set
}

func (h *memoryHandle) Repos() *repositories.Set { return h.repos }

func (h *memoryHandle) Close(context.Context) error { return nil }

// MemoryConnector keeps one in-memory store per tenant for the life of the
// process, so data survives pool eviction.
type MemoryConnector struct {
	mu     sync.Mutex
	stores map[string]*repositories.Set
}

func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{stores: make(map[string]*repositories.Set)}
}

func (c *MemoryConnector) Open(_ context.Context, tenant *models.Tenant) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.stores[tenant.ID]
	if !ok {
		set = repositories.NewMemorySet()
		c.stores[tenant.ID] = set
	}
	return &memoryHandle{repos: set}, nil
}
