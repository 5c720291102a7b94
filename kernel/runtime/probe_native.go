//go:build !js || !wasm

package runtime

// Probe inspects the host environment. Native processes have no page.
type Probe struct {
	hostObject string
}

func NewProbe(hostObject string) *Probe {
	return &Probe{hostObject: hostObject}
}

func (p *Probe) Detect() HostInfo {
	return HostInfo{}
}
