package connection

import (
	"context"
	"fmt"

	"github.com/mlops-eval/typedb-driver/src/clienterrors"
)

// DatabaseManager creates, lists and deletes the databases of the server.
type DatabaseManager struct {
	client *Client
}

// Database is a handle on a database that existed when it was looked up.
type Database struct {
	name    string
	manager *DatabaseManager
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) Delete(ctx context.Context) error {
	return d.manager.Delete(ctx, d.name)
}

func (m *DatabaseManager) check(name string) error {
	if !m.client.IsOpen() {
		return clienterrors.ClientClosed.New()
	}
	if name == "" {
		return clienterrors.MissingDBName.New()
	}
	return nil
}

func (m *DatabaseManager) Create(ctx context.Context, name string) error {
	if err := m.check(name); err != nil {
		return err
	}
	if err := m.client.rpc.DatabaseCreate(ctx, name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return nil
}

func (m *DatabaseManager) Contains(ctx context.Context, name string) (bool, error) {
	if err := m.check(name); err != nil {
		return false, err
	}
	contains, err := m.client.rpc.DatabaseContains(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up database %s: %w", name, err)
	}
	return contains, nil
}

// Get returns the database called name, failing if it does not exist.
func (m *DatabaseManager) Get(ctx context.Context, name string) (*Database, error) {
	contains, err := m.Contains(ctx, name)
	if err != nil {
		return nil, err
	}
	if !contains {
		return nil, clienterrors.DatabaseDoesNotExist.New(name)
	}
	return &Database{name: name, manager: m}, nil
}

func (m *DatabaseManager) All(ctx context.Context) ([]*Database, error) {
	if !m.client.IsOpen() {
		return nil, clienterrors.ClientClosed.New()
	}
	names, err := m.client.rpc.DatabaseAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	databases := make([]*Database, 0, len(names))
	for _, name := range names {
		databases = append(databases, &Database{name: name, manager: m})
	}
	return databases, nil
}

func (m *DatabaseManager) Delete(ctx context.Context, name string) error {
	if err := m.check(name); err != nil {
		return err
	}
	if err := m.client.rpc.DatabaseDelete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete database %s: %w", name, err)
	}
	return nil
}
