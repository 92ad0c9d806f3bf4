package comm

import (
	"errors"

	"github.com/railab/nxslib-go/internal/metrics"
)

// Sentinel errors for the command/ACK layer and receive pipeline, grounded on
// the teacher's internal/server/errors.go sentinel-plus-errors.Is pattern.
var (
	ErrHdr                   = errors.New("comm: header error")
	ErrFoot                  = errors.New("comm: footer/crc error")
	ErrTimeout               = errors.New("comm: timeout")
	ErrInvalidArgument       = errors.New("comm: invalid argument")
	ErrUnsupportedCapability = errors.New("comm: unsupported capability")
	ErrProtocol              = errors.New("comm: protocol error")
	ErrNotConnected          = errors.New("comm: not connected")
)

// mapErrToMetric maps a wrapped sentinel error to a metrics frame-error kind
// label, the way the teacher's mapErrToMetric does for its own sentinels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrHdr):
		return metrics.ErrKindHdr
	case errors.Is(err, ErrFoot):
		return metrics.ErrKindFoot
	case errors.Is(err, ErrProtocol):
		return metrics.ErrKindProtocol
	case errors.Is(err, ErrTimeout):
		return metrics.ErrKindTimeout
	default:
		return metrics.ErrKindOther
	}
}
