//go:build js && wasm

package runtime

import (
	"syscall/js"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Probe inspects the page the module was loaded into.
type Probe struct {
	hostObject string
}

func NewProbe(hostObject string) *Probe {
	return &Probe{hostObject: hostObject}
}

// Detect reads the host object, its version and the navigator.
func (p *Probe) Detect() HostInfo {
	global := js.Global()
	info := HostInfo{}

	host := global.Get(p.hostObject)
	if host.Type() == js.TypeObject {
		info.HostObject = true
		if v := host.Get("version"); v.Type() == js.TypeString {
			info.Version = v.String()
		}
	}

	// absent in non-browser wasm hosts
	if navigator := global.Get("navigator"); navigator.Truthy() {
		if ua := navigator.Get("userAgent"); ua.Type() == js.TypeString {
			info.UserAgent = ua.String()
		}
	}

	utils.Debug("Host environment probed",
		utils.Bool("host_object", info.HostObject),
		utils.String("version", info.Version),
		utils.Bool("in_app", info.InApp()))
	return info
}
