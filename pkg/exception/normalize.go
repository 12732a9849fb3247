package exception

import "github.com/yanun0323/errors"

// Normalize errors
var (
	ErrNormalizeShapeMismatch   = errors.New("normalize: decoded payload is not an object")
	ErrNormalizeDecode          = errors.New("normalize: json decode")
	ErrNormalizeUnsupportedType = errors.New("normalize: unsupported payload type")
)
