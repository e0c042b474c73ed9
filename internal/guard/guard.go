package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hopper/internal/archive"
	"hopper/internal/logging"
)

const (
	failedPrefix     = "failed_"
	duplicatedPrefix = "duplicated_"
)

// writeBits are stripped from the original while a package is locked.
const writeBits = os.FileMode(0o222)

// Guard produces held packages bound to the configured work directory.
type Guard struct {
	workDir string
	group   string
	logger  *slog.Logger
}

// New builds a guard. group may be empty to skip ownership changes.
func New(workDir, group string, logger *slog.Logger) *Guard {
	return &Guard{
		workDir: workDir,
		group:   group,
		logger:  logging.NewComponentLogger(logger, "guard"),
	}
}

// MarkFailedPath renames an original that could not even be held, such as a
// corrupt container. A vanished original is tolerated.
func (g *Guard) MarkFailedPath(originalPath string) error {
	dir, base := filepath.Split(originalPath)
	if err := os.Rename(originalPath, filepath.Join(dir, failedPrefix+base)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("mark %s: %w", originalPath, err)
	}
	return nil
}

// Package is one inbound archive held for processing. All inspection happens
// on the safe copy; the original is only touched for locking and terminal
// renames.
type Package struct {
	originalPath string
	workPath     string
	inspector    *archive.Inspector
	group        string
	logger       *slog.Logger

	locked       bool
	originalMode os.FileMode
}

// Hold copies the original into the work directory under a fresh opaque
// identifier (original extension preserved) and opens the inspector on the
// copy. A producer overwriting or deleting the original cannot corrupt an
// in-flight validation.
func (g *Guard) Hold(originalPath string) (*Package, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	workPath := filepath.Join(g.workDir, id+filepath.Ext(originalPath))

	if err := copyFile(originalPath, workPath); err != nil {
		return nil, fmt.Errorf("safe copy: %w", err)
	}

	inspector, err := archive.Open(workPath)
	if err != nil {
		_ = os.Remove(workPath)
		return nil, err
	}

	return &Package{
		originalPath: originalPath,
		workPath:     workPath,
		inspector:    inspector,
		group:        g.group,
		logger:       g.logger,
	}, nil
}

// Inspector returns the inspector bound to the safe copy.
func (p *Package) Inspector() *archive.Inspector {
	return p.inspector
}

// OriginalPath returns the inbound path the package was held from.
func (p *Package) OriginalPath() string {
	return p.originalPath
}

// WorkPath returns the safe copy location.
func (p *Package) WorkPath() string {
	return p.workPath
}

// Lock strips owner and world write bits from the original and moves it to
// the application group. Idempotent. If the group change fails after the
// permission change succeeded, permissions are rolled back before the error
// propagates.
func (p *Package) Lock() error {
	if p.locked {
		return nil
	}

	info, err := os.Stat(p.originalPath)
	if err != nil {
		return fmt.Errorf("lock %s: %w", p.originalPath, err)
	}
	originalMode := info.Mode().Perm()

	if err := os.Chmod(p.originalPath, originalMode&^writeBits); err != nil {
		return fmt.Errorf("lock %s: chmod: %w", p.originalPath, err)
	}

	if p.group != "" {
		gid, err := lookupGroupID(p.group)
		if err == nil {
			_, currentGID, statErr := Ownership(p.originalPath)
			if statErr != nil || currentGID != gid {
				err = os.Chown(p.originalPath, -1, gid)
			}
		}
		if err != nil {
			if rbErr := os.Chmod(p.originalPath, originalMode); rbErr != nil {
				return fmt.Errorf("lock %s: chown: %w (permission rollback also failed: %v)", p.originalPath, err, rbErr)
			}
			return fmt.Errorf("lock %s: chown: %w", p.originalPath, err)
		}
	}

	p.originalMode = originalMode
	p.locked = true
	return nil
}

// Unlock restores the permission bits observed before Lock. Idempotent;
// safe to call on every exit path.
func (p *Package) Unlock() error {
	if !p.locked {
		return nil
	}
	if err := os.Chmod(p.originalPath, p.originalMode); err != nil {
		return fmt.Errorf("unlock %s: chmod: %w", p.originalPath, err)
	}
	p.locked = false
	return nil
}

// Close unlocks if needed and releases the inspector. The safe copy is kept
// for the persisted record.
func (p *Package) Close() error {
	var errs []error
	if err := p.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := p.inspector.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MarkFailed renames the original with the failed prefix. When silent, a
// vanished original is tolerated (races with operator cleanup).
func (p *Package) MarkFailed(silent bool) error {
	return p.markOriginal(failedPrefix, silent)
}

// MarkDuplicated renames the original with the duplicated prefix. When
// silent, a vanished original is tolerated.
func (p *Package) MarkDuplicated(silent bool) error {
	return p.markOriginal(duplicatedPrefix, silent)
}

func (p *Package) markOriginal(prefix string, silent bool) error {
	dir, base := filepath.Split(p.originalPath)
	target := filepath.Join(dir, prefix+base)
	if err := os.Rename(p.originalPath, target); err != nil {
		if silent && errors.Is(err, os.ErrNotExist) {
			p.logger.Debug("original already gone, rename skipped",
				logging.String(logging.FieldPackage, p.originalPath))
			return nil
		}
		return fmt.Errorf("mark %s: %w", p.originalPath, err)
	}
	p.locked = false
	return nil
}

func lookupGroupID(group string) (int, error) {
	if gid, err := strconv.Atoi(group); err == nil {
		return gid, nil
	}
	grp, err := user.LookupGroup(group)
	if err != nil {
		return 0, fmt.Errorf("lookup group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return 0, fmt.Errorf("parse gid %q: %w", grp.Gid, err)
	}
	return gid, nil
}
