package applier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/tempo-operator/pkg/certs"
	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/log"
	"github.com/cuemby/tempo-operator/pkg/storage"
	"github.com/cuemby/tempo-operator/pkg/synth"
	"github.com/cuemby/tempo-operator/pkg/types"
	"github.com/cuemby/tempo-operator/pkg/workload"
)

// Apply steps reported in ApplyError
const (
	StepRender  = "render"
	StepFiles   = "write-files"
	StepRestart = "restart"
	StepPersist = "persist"
)

// Result describes what one Apply did
type Result struct {
	Hash      string
	Version   uint64
	Applied   bool
	Restarted bool
	Changed   []string
}

// Applier makes the workload run a WorkloadConfig: it writes the rendered
// files, restarts the workload and records the AppliedState. A config
// whose hash equals the recorded state is a no-op.
type Applier struct {
	paths      config.PathsConfig
	store      storage.Store
	supervisor workload.Supervisor
	logger     zerolog.Logger

	writeFile func(path string, data []byte, perm os.FileMode) error
	now       func() time.Time
}

// New creates an Applier writing under paths
func New(paths config.PathsConfig, store storage.Store, supervisor workload.Supervisor) *Applier {
	return &Applier{
		paths:      paths,
		store:      store,
		supervisor: supervisor,
		logger:     log.WithComponent("applier"),
		writeFile:  atomicwriter.WriteFile,
		now:        time.Now,
	}
}

// Current returns the recorded AppliedState, or nil before the first apply
func (a *Applier) Current() (*types.AppliedState, error) {
	state, err := a.store.GetAppliedState()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return state, err
}

// Apply brings the workload to wc. TLS material is written when TLS is
// enabled and removed when it is not.
//
// A failure while writing files restores the previous files and leaves
// the AppliedState untouched. A failure at or after restart also leaves
// the AppliedState untouched; the files stay in place and the next pass
// retries.
func (a *Applier) Apply(ctx context.Context, wc types.WorkloadConfig, material certs.Material) (Result, error) {
	hash := synth.Hash(wc)
	result := Result{Hash: hash, Version: wc.Version}

	current, err := a.Current()
	if err != nil {
		return result, &types.ApplyError{Step: StepPersist, Err: fmt.Errorf("read applied state: %w", err)}
	}
	if current != nil && current.Hash == hash {
		return result, nil
	}

	files, err := a.desiredFiles(wc, material)
	if err != nil {
		return result, &types.ApplyError{Step: StepRender, Err: err}
	}

	changed, err := a.writeAll(files)
	if err != nil {
		return result, err
	}
	result.Changed = changed

	// A pending marker means the files on disk are ahead of the running
	// workload, possibly from before this process started.
	pending, err := a.store.GetPendingRestart()
	if err != nil {
		return result, &types.ApplyError{Step: StepPersist, Err: fmt.Errorf("read pending restart: %w", err)}
	}

	if len(changed) > 0 || pending != "" || current == nil {
		if err := a.store.SetPendingRestart(hash); err != nil {
			return result, &types.ApplyError{Step: StepPersist, Err: fmt.Errorf("record pending restart: %w", err)}
		}
		if err := a.supervisor.Restart(ctx); err != nil {
			return result, &types.ApplyError{Step: StepRestart, Err: err}
		}
		result.Restarted = true
	}

	state := &types.AppliedState{Hash: hash, Version: wc.Version, AppliedAt: a.now().UTC()}
	if err := a.store.SaveAppliedState(state); err != nil {
		return result, &types.ApplyError{Step: StepPersist, Err: err}
	}
	result.Applied = true

	if result.Restarted {
		if err := a.store.SetPendingRestart(""); err != nil {
			a.logger.Warn().Err(err).Msg("failed to clear pending restart")
		}
	}

	a.logger.Info().
		Uint64("version", wc.Version).
		Str("hash", hash).
		Strs("changed", changed).
		Bool("restarted", result.Restarted).
		Msg("configuration applied")
	return result, nil
}

// file is one managed file; nil data means the file must not exist
type file struct {
	path string
	data []byte
	perm os.FileMode
}

func (a *Applier) desiredFiles(wc types.WorkloadConfig, material certs.Material) ([]file, error) {
	tls := synth.TLSFilesIn(a.paths.CertDir)

	tempo, err := synth.Render(wc, tls)
	if err != nil {
		return nil, err
	}
	logForwarding, err := synth.RenderLogForwarding(wc)
	if err != nil {
		return nil, err
	}

	files := []file{
		{path: a.paths.Config, data: tempo, perm: 0o644},
		{path: a.paths.LogForwarding, data: logForwarding, perm: 0o644},
	}

	if wc.TLS.Enabled {
		if material.Empty() || len(material.Key) == 0 {
			return nil, fmt.Errorf("tls enabled without certificate material")
		}
		files = append(files,
			file{path: tls.CertFile, data: material.Chain, perm: 0o644},
			file{path: tls.KeyFile, data: material.Key, perm: 0o600},
			file{path: tls.CAFile, data: material.CA, perm: 0o644},
		)
	} else {
		files = append(files, file{path: tls.CertFile}, file{path: tls.KeyFile}, file{path: tls.CAFile})
	}
	return files, nil
}

// backup is the previous state of a file changed by writeAll
type backup struct {
	path    string
	data    []byte
	existed bool
	perm    os.FileMode
}

// writeAll writes files that differ from disk. On failure every file
// already changed is restored.
func (a *Applier) writeAll(files []file) ([]string, error) {
	var (
		changed []string
		backups []backup
	)

	for _, f := range files {
		old, err := os.ReadFile(f.path)
		existed := err == nil
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, a.rollback(backups, f.path, err)
		}
		oldPerm := f.perm
		if info, err := os.Stat(f.path); err == nil {
			oldPerm = info.Mode().Perm()
		}

		if f.data == nil {
			if !existed {
				continue
			}
			backups = append(backups, backup{path: f.path, data: old, existed: true, perm: oldPerm})
			if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, a.rollback(backups, f.path, err)
			}
			changed = append(changed, f.path)
			continue
		}

		if existed && bytes.Equal(old, f.data) {
			continue
		}

		backups = append(backups, backup{path: f.path, data: old, existed: existed, perm: oldPerm})
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return nil, a.rollback(backups, f.path, err)
		}
		if err := a.writeFile(f.path, f.data, f.perm); err != nil {
			return nil, a.rollback(backups, f.path, err)
		}
		changed = append(changed, f.path)
	}

	return changed, nil
}

func (a *Applier) rollback(backups []backup, failed string, cause error) error {
	var errs error
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		if !b.existed {
			if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		perm := b.perm
		if perm == 0 {
			perm = 0o600
		}
		if err := atomicwriter.WriteFile(b.path, b.data, perm); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	applyErr := &types.ApplyError{
		Step:       StepFiles,
		RolledBack: errs == nil,
		Err:        fmt.Errorf("%s: %w", failed, cause),
	}
	if errs != nil {
		a.logger.Error().Err(errs).Msg("rollback incomplete")
		applyErr.Err = multierr.Append(applyErr.Err, fmt.Errorf("rollback: %w", errs))
	} else {
		a.logger.Warn().Err(cause).Str("file", failed).Int("restored", len(backups)).Msg("file write failed, previous files restored")
	}
	return applyErr
}
