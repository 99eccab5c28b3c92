package plugin

import (
	"log/slog"
)

// Engine runs the discovery pipeline: resolve, install if needed, load.
type Engine struct {
	Resolver  *Resolver
	Installer *Installer
	Loader    *Loader
	Logger    *slog.Logger
}

// NewEngine wires a resolver, installer and loader sharing one logger.
func NewEngine(appDataDir, resourceDir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Resolver:  NewResolver(appDataDir, resourceDir, logger),
		Installer: NewInstaller(logger),
		Loader:    NewLoader(logger),
		Logger:    logger,
	}
}

// DiscoverAndInstall resolves the active plugin directory, populates it from
// the bundled defaults when it is an empty install location, and loads the
// catalog. It never fails; the worst case is an empty catalog.
//
// A developer override or a non-empty install location is never written to.
func (e *Engine) DiscoverAndInstall() (Resolution, *Catalog) {
	res := e.Resolver.Resolve()

	if res.Source == SourceInstalled && isDirEmpty(res.Path) {
		if res.BundledPath == "" {
			e.Logger.Info("no bundled plugins found", "resource_dir", e.Resolver.ResourceDir)
		} else {
			e.Logger.Info("installing bundled plugins", "from", res.BundledPath, "to", res.Path)
			e.Installer.Install(res.BundledPath, res.Path)
		}
	}

	catalog := e.Loader.Load(res.Path)
	e.Logger.Info("plugin discovery complete",
		"source", string(res.Source),
		"path", res.Path,
		"loaded", catalog.Len(),
		"skipped", len(catalog.Skipped))

	return res, catalog
}
