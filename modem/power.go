package modem

// PowerController toggles the modem's power rail, typically via a GPIO
// pin on the host (e.g. a Raspberry Pi HAT). The Worker calls Off/On in
// sequence when a connectivity probe fails, matching the "toggle power
// line low for 4s then high" behavior called for in spec.md §4.5.
//
// No GPIO library appears anywhere in the example pack, so this stays
// an interface: the default NoopPowerController satisfies deployments
// without power control wired up, and a real implementation is a
// satisfier a caller can supply (periph.io, rpi-gpio bindings, etc.)
// without this package needing to depend on one.
type PowerController interface {
	Off() error
	On() error
}

// NoopPowerController implements PowerController as a no-op, for
// deployments without a controllable power rail.
type NoopPowerController struct{}

func (NoopPowerController) Off() error { return nil }
func (NoopPowerController) On() error  { return nil }
