package storage

import "errors"

var (
	ErrStorageClosed  = errors.New("storage closed")
	ErrPageOutOfRange = errors.New("page id out of range")
)
