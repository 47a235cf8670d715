package resource

import "github.com/wippyai/wasm-runtime/errors"

func capabilityDeniedErr(detail string) error {
	return errors.CapabilityDenied(detail)
}

func handleNotFoundErr(h Handle) error {
	return errors.HandleNotFound(uint32(h))
}

func handleTypeMismatchErr(want, got TypeID) error {
	return errors.HandleTypeMismatch(uint32(want), uint32(got))
}
