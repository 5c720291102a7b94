package runtime

import (
	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// BoundaryKind names where the real path goes.
type BoundaryKind int

const (
	// No real path; every call is answered by the mock responder.
	BoundaryNone BoundaryKind = iota
	// The page's host bridge object.
	BoundaryHost
	// A devhost over websocket.
	BoundaryDevhost
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryHost:
		return "host"
	case BoundaryDevhost:
		return "devhost"
	default:
		return "none"
	}
}

// PlanBoundary picks the real path for cfg.Mode. A host object wins over a
// devhost unless, in ModeAuto, the version it reports fails
// cfg.HostVersionConstraint; ModeReal keeps it so bridge.New reports the
// mismatch. ModeMock never builds one.
func PlanBoundary(cfg bridge.Config, devhostURL string, info HostInfo) BoundaryKind {
	hostUsable := info.HostObject
	if hostUsable && cfg.Mode == bridge.ModeAuto {
		if err := bridge.CheckHostVersion(info.Version, cfg.HostVersionConstraint); err != nil {
			utils.Warn("Skipping incompatible host bridge",
				utils.String("version", info.Version),
				utils.String("constraint", cfg.HostVersionConstraint))
			hostUsable = false
		}
	}

	kind := BoundaryNone
	switch {
	case cfg.Mode == bridge.ModeMock:
	case hostUsable:
		kind = BoundaryHost
	case devhostURL != "":
		kind = BoundaryDevhost
	}

	utils.Info("Boundary planned",
		utils.String("mode", cfg.Mode.String()),
		utils.String("boundary", kind.String()),
		utils.String("host_version", info.Version),
		utils.Bool("in_app", info.InApp()))
	return kind
}
