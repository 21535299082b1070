package store

import (
	"github.com/ngoduykhanh/wgserver/model"
)

// IStore persists a server and its clients as a single document per config path
type IStore interface {
	Load(path string) (*model.Server, error)
	Dump(server *model.Server, path string) error
	Create(server *model.Server, path string) error
	View(path string, fn func(server *model.Server) error) error
	Update(path string, fn func(server *model.Server) error) error
}
