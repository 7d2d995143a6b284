package main

import (
	"context"

	"github.com/promptvault/promptvault/internal/manager"
	"github.com/promptvault/promptvault/internal/schema"
	"github.com/promptvault/promptvault/internal/storage"
)

// loadManager opens the file store at base, loads schema documents from
// schemasDir when given, and hydrates a manager from the stored prompts.
// The manager owns the store; Close releases both.
func loadManager(ctx context.Context, base, schemasDir string) (*manager.Manager, error) {
	store, err := storage.NewFile(base)
	if err != nil {
		return nil, err
	}

	m, err := manager.New(manager.WithStore(store))
	if err != nil {
		store.Close()
		return nil, err
	}

	if schemasDir != "" {
		loader := schema.NewLoader(m.Schemas())
		if _, err := loader.LoadDirectory(schemasDir); err != nil {
			m.Close()
			return nil, err
		}
	}

	if _, err := m.LoadStore(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}
