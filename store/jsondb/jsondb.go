package jsondb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/model"
)

const (
	lockSuffix = ".lock"
	filePerm   = 0o600
	dirPerm    = 0o700
)

// JsonDB stores the server config as one JSON document.
// Mutations go through Update, which holds an exclusive file lock from load to dump.
type JsonDB struct{}

// New returns a new pointer JsonDB
func New() *JsonDB {
	return &JsonDB{}
}

// Load reads and validates the server config at path
func (o *JsonDB) Load(path string) (*model.Server, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: server config %s", model.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	defer f.Close()

	server := new(model.Server)
	if err := json.NewDecoder(f).Decode(server); err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s: %v", model.ErrParse, path, err)
	}
	if server.Clients == nil {
		server.Clients = make(map[int]*model.Client)
	}
	if err := server.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	server.Subnet = server.Subnet.Masked()

	return server, nil
}

// Dump writes the server config to path, replacing the previous document atomically
func (o *JsonDB) Dump(server *model.Server, path string) error {
	buf, err := json.MarshalIndent(server, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: cannot encode server config: %w", model.ErrIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(buf, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	log.Debugf("Wrote server config to %s", path)
	return nil
}

// Create writes a brand new server config and refuses to overwrite an existing one
func (o *JsonDB) Create(server *model.Server, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	lock, err := o.lock(path, true)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", model.ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	return o.Dump(server, path)
}

// View loads the server config under a shared lock and passes it to fn
func (o *JsonDB) View(path string, fn func(server *model.Server) error) error {
	lock, err := o.lock(path, false)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	server, err := o.Load(path)
	if err != nil {
		return err
	}
	return fn(server)
}

// Update runs fn on the loaded server config and persists the result.
// Nothing is written when fn fails.
func (o *JsonDB) Update(path string, fn func(server *model.Server) error) error {
	lock, err := o.lock(path, true)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	server, err := o.Load(path)
	if err != nil {
		return err
	}
	if err := fn(server); err != nil {
		return err
	}
	return o.Dump(server, path)
}

func (o *JsonDB) lock(path string, exclusive bool) (*flock.Flock, error) {
	lock := flock.New(path + lockSuffix)

	var err error
	if exclusive {
		err = lock.Lock()
	} else {
		err = lock.RLock()
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: server config %s", model.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: cannot lock %s: %w", model.ErrIO, path, err)
	}
	return lock, nil
}
