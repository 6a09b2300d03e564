package services

import (
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// Registry provides access to the wired voxnotes services.
type Registry interface {
	Store() *store.SQLiteStore
	Notes() *notes.Service
	Extractor() *extraction.Orchestrator
	Model() *ondevice.Service
	// Cloud returns nil when no API key is configured.
	Cloud() *extraction.CloudClient
}

// Options configures the registry with service instances.
type Options struct {
	Store     *store.SQLiteStore
	Notes     *notes.Service
	Extractor *extraction.Orchestrator
	Model     *ondevice.Service
	Cloud     *extraction.CloudClient
}

type registry struct {
	store     *store.SQLiteStore
	notes     *notes.Service
	extractor *extraction.Orchestrator
	model     *ondevice.Service
	cloud     *extraction.CloudClient
}

var _ Registry = (*registry)(nil)

// NewRegistry creates a registry over opts.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:     opts.Store,
		notes:     opts.Notes,
		extractor: opts.Extractor,
		model:     opts.Model,
		cloud:     opts.Cloud,
	}
}

func (r *registry) Store() *store.SQLiteStore           { return r.store }
func (r *registry) Notes() *notes.Service               { return r.notes }
func (r *registry) Extractor() *extraction.Orchestrator { return r.extractor }
func (r *registry) Model() *ondevice.Service            { return r.model }
func (r *registry) Cloud() *extraction.CloudClient      { return r.cloud }
