package grove

import (
	"errors"

	"grove/internal/base"
	"grove/internal/buffer"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrKeySize         = errors.New("key length does not match tree key size")
	ErrKeySizeInvalid  = errors.New("key size out of range")
	ErrMaxSizeTooSmall = errors.New("node max size below 3")
	ErrMaxSizeTooLarge = errors.New("node max size does not fit one page")
	ErrCorruption      = errors.New("node page corruption detected")

	ErrPoolFull   = buffer.ErrPoolFull
	ErrPagePinned = buffer.ErrPagePinned

	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidChecksum    = base.ErrInvalidChecksum
)
