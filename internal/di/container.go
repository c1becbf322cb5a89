// Package di provides dependency injection configuration for the Leafmark
// sync tooling.
package di

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/logger"
	"github.com/leafmarkapp/leafmark-sync/internal/merge"
	"github.com/leafmarkapp/leafmark-sync/internal/relay"
	"github.com/leafmarkapp/leafmark-sync/internal/relay/server"
	"github.com/leafmarkapp/leafmark-sync/internal/service"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
	"github.com/leafmarkapp/leafmark-sync/internal/store/sqlite"
)

// NewContainer creates the DI container with all providers. flags carries
// the command-line overrides the invoking command collected.
func NewContainer(flags config.Flags) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, provideConfig(flags))
	do.Provide(injector, ProvideLogger)

	// Record store
	do.Provide(injector, ProvideStore)

	// Relay clients
	do.Provide(injector, ProvideBlobClient)
	do.Provide(injector, ProvideSignalClient)

	// Sync engine
	do.Provide(injector, ProvideDeviceID)
	do.Provide(injector, ProvideMergeEngine)
	do.Provide(injector, ProvideSyncService)

	// Relay daemon
	do.Provide(injector, ProvideRelayServer)

	return injector
}

// provideConfig closes over the command's parsed flags.
func provideConfig(flags config.Flags) func(do.Injector) (*config.Config, error) {
	return func(do.Injector) (*config.Config, error) {
		return config.Load(flags)
	}
}

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}), nil
}

// StoreHandle wraps the sqlite store for lifecycle management.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown closes the database.
func (h *StoreHandle) Shutdown() error {
	return h.Store.Close()
}

// ProvideStore opens the local record store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, err := sqlite.Open(cfg.DB.Path, log.Logger)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{Store: st}, nil
}

// ProvideBlobClient provides the blob relay client.
func ProvideBlobClient(i do.Injector) (*relay.BlobClient, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	opts := relay.Options{RetryBase: cfg.Relay.RetryBase, RetryMax: cfg.Relay.RetryMax}
	return relay.NewBlobClient(cfg.Relay.BlobURL, opts, log.Logger), nil
}

// ProvideSignalClient provides the topic signal relay client.
func ProvideSignalClient(i do.Injector) (*relay.SignalClient, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	opts := relay.Options{RetryBase: cfg.Relay.RetryBase, RetryMax: cfg.Relay.RetryMax}
	return relay.NewSignalClient(cfg.Relay.SignalURL, cfg.Relay.PollTimeout, opts, log.Logger), nil
}

// DeviceID is the stable identifier stamped into outgoing snapshots.
type DeviceID string

// ProvideDeviceID loads or mints the device identifier, stored next to the
// database file.
func ProvideDeviceID(i do.Injector) (DeviceID, error) {
	cfg := do.MustInvoke[*config.Config](i)

	idPath := filepath.Join(filepath.Dir(cfg.DB.Path), "device_id")
	deviceID, err := service.EnsureDeviceID(idPath)
	if err != nil {
		return "", err
	}
	return DeviceID(deviceID), nil
}

// ProvideMergeEngine provides the merge engine.
func ProvideMergeEngine(i do.Injector) (*merge.Engine, error) {
	handle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	return merge.New(handle.Store, log.Logger), nil
}

// ProvideSyncService provides the pairing sync service.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	handle := do.MustInvoke[*StoreHandle](i)
	merger := do.MustInvoke[*merge.Engine](i)
	blob := do.MustInvoke[*relay.BlobClient](i)
	signal := do.MustInvoke[*relay.SignalClient](i)
	deviceID := do.MustInvoke[DeviceID](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSyncService(handle.Store, merger, blob, signal, string(deviceID), log.Logger), nil
}

// ProvideRelayServer provides the self-hosted relay daemon handler.
func ProvideRelayServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return server.New(server.Config{
		BlobTTL:           cfg.Relayd.BlobTTL,
		TopicTTL:          cfg.Relayd.TopicTTL,
		MaxBlobBytes:      cfg.Relayd.MaxBlobBytes,
		RequestsPerSecond: cfg.Relayd.RequestsPerSecond,
	}, log.Logger), nil
}

var _ store.Store = (*StoreHandle)(nil)
