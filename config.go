package hound

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DriverSpec names one driver to bring up and, optionally, the data
// streams to immediately subscribe a Context to once it starts. Path,
// SchemaBaseDir, SchemaFile, and Args are forwarded to InitDriver
// verbatim. Callback is required whenever Subscribe is non-empty;
// InitConfig passes Callback and CallbackCtx straight through to AllocCtx.
type DriverSpec struct {
	Name          string
	Path          string
	SchemaBaseDir string
	SchemaFile    string
	Args          []string
	AutoStart     bool
	Subscribe     RequestList
	Callback      Callback
	CallbackCtx   any
}

// ParsedConfig is the result of parsing a deployment's driver
// configuration (e.g. from a config file or flags, which this package
// intentionally does not parse itself) into the values InitConfig needs.
type ParsedConfig struct {
	Drivers []DriverSpec
}

// InitConfig brings up every driver in cfg concurrently, registers it was
// already done by the caller via RegisterDriver, and returns a Context per
// spec with a non-empty Subscribe list. If any driver fails to
// Init/Start/subscribe, every driver already brought up by this call is
// torn down before InitConfig returns the first error.
func (h *Hound) InitConfig(ctx context.Context, cfg ParsedConfig) (map[string]*Context, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	devIDs := make(map[string]DeviceID, len(cfg.Drivers))
	ctxs := make(map[string]*Context, len(cfg.Drivers))

	for _, spec := range cfg.Drivers {
		spec := spec
		g.Go(func() error {
			devID, err := h.InitDriver(gctx, spec.Name, spec.Path, spec.SchemaBaseDir, spec.SchemaFile, spec.Args)
			if err != nil {
				return err
			}
			mu.Lock()
			devIDs[spec.Name] = devID
			mu.Unlock()

			if spec.AutoStart {
				if err := h.StartDriver(gctx, devID); err != nil {
					return err
				}
			}
			if len(spec.Subscribe) > 0 {
				c, err := h.AllocCtx(devID, spec.Subscribe, 0, spec.Callback, spec.CallbackCtx)
				if err != nil {
					return err
				}
				if err := c.Start(); err != nil {
					return err
				}
				mu.Lock()
				ctxs[spec.Name] = c
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, c := range ctxs {
			_ = c.Stop()
			_ = c.Free()
		}
		for _, devID := range devIDs {
			_ = h.StopDriver(devID)
			_ = h.DestroyDriver(devID)
		}
		return nil, err
	}

	return ctxs, nil
}
